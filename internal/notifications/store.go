package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CheckpointStore persists one checkpoint per session key. Save replaces the
// value atomically; there is never a moment where a reader sees a partial
// write.
type CheckpointStore interface {
	Load(ctx context.Context, key string) (time.Time, bool, error)
	Save(ctx context.Context, key string, t time.Time) error
}

// MemoryStore keeps checkpoints in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	points map[string]time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{points: make(map[string]time.Time)}
}

func (s *MemoryStore) Load(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.points[key]
	return t, ok, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points[key] = t
	return nil
}

// RedisStore keeps each checkpoint as a single RFC 3339 string key, so a
// save is one SET.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store writing keys under prefix. A zero ttl keeps
// checkpoints forever.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "notifications:checkpoint:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, key string) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("load checkpoint: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse checkpoint %q: %w", val, err)
	}
	return t, true, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, t time.Time) error {
	if err := s.client.Set(ctx, s.prefix+key, t.UTC().Format(time.RFC3339Nano), s.ttl).Err(); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
