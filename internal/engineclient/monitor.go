package engineclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/outreach-relay/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Lock elects the replica that probes during an interval. The distlock
// package's lease satisfies it.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
}

// SharedHealth publishes one replica's probe result to the others.
type SharedHealth interface {
	Load(ctx context.Context) (HealthState, bool, error)
	Store(ctx context.Context, state HealthState) error
}

// Monitor probes the engine periodically. With a Lock and SharedHealth set,
// only the lock holder probes and the other replicas adopt its result, so the
// engine sees one probe per interval regardless of replica count.
type Monitor struct {
	client   *Client
	interval time.Duration
	lock     Lock
	shared   SharedHealth
	onChange func(prev, next HealthState)
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithProbeLock enables cross-replica probe election.
func WithProbeLock(lock Lock, shared SharedHealth) MonitorOption {
	return func(m *Monitor) {
		m.lock = lock
		m.shared = shared
	}
}

// OnHealthChange registers a callback for healthy/unhealthy transitions.
func OnHealthChange(fn func(prev, next HealthState)) MonitorOption {
	return func(m *Monitor) { m.onChange = fn }
}

// NewMonitor creates a Monitor probing every interval.
func NewMonitor(client *Client, interval time.Duration, opts ...MonitorOption) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	m := &Monitor{client: client, interval: interval}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run probes immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	logger.Info("engine health monitor started", "interval", m.interval, "shared", m.lock != nil)
	m.Tick(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("engine health monitor stopped")
			return nil
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick performs one monitoring round and returns the resulting state.
func (m *Monitor) Tick(ctx context.Context) HealthState {
	prev := m.client.Health()
	next := m.round(ctx)

	if prev.Healthy != next.Healthy && !prev.LastCheckedAt.IsZero() {
		if next.Healthy {
			logger.Info("engine recovered", "status", next.Status)
		} else {
			logger.Warn("engine degraded", "error", next.LastError)
		}
		if m.onChange != nil {
			m.onChange(prev, next)
		}
	}
	return next
}

func (m *Monitor) round(ctx context.Context) HealthState {
	if m.lock == nil {
		return m.client.ProbeHealth(ctx)
	}

	held, err := m.lock.Acquire(ctx)
	if err != nil {
		// Without the lock backend every replica falls back to probing.
		logger.Warn("probe lock unavailable, probing locally", "error", err)
		return m.client.ProbeHealth(ctx)
	}
	if held {
		state := m.client.ProbeHealth(ctx)
		if m.shared != nil {
			if err := m.shared.Store(ctx, state); err != nil {
				logger.Warn("failed to share engine health", "error", err)
			}
		}
		return state
	}

	if m.shared == nil {
		return m.client.Health()
	}
	state, ok, err := m.shared.Load(ctx)
	if err != nil {
		logger.Warn("failed to load shared engine health", "error", err)
		return m.client.Health()
	}
	if ok && state.LastCheckedAt.After(m.client.Health().LastCheckedAt) {
		m.client.adoptHealth(state)
	}
	return m.client.Health()
}

// RedisSharedHealth stores the elected replica's probe result in Redis.
type RedisSharedHealth struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisSharedHealth creates a shared health record under key. The record
// expires after ttl so a dead prober does not leave a stale "healthy".
func NewRedisSharedHealth(client *redis.Client, key string, ttl time.Duration) *RedisSharedHealth {
	if key == "" {
		key = "engine:health"
	}
	return &RedisSharedHealth{client: client, key: key, ttl: ttl}
}

// Load returns the shared state, or ok=false when none is stored.
func (s *RedisSharedHealth) Load(ctx context.Context) (HealthState, bool, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return HealthState{}, false, nil
	}
	if err != nil {
		return HealthState{}, false, fmt.Errorf("load shared health %s: %w", s.key, err)
	}
	var state HealthState
	if err := json.Unmarshal(data, &state); err != nil {
		return HealthState{}, false, fmt.Errorf("decode shared health %s: %w", s.key, err)
	}
	return state, true, nil
}

// Store replaces the shared state.
func (s *RedisSharedHealth) Store(ctx context.Context, state HealthState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode shared health: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store shared health %s: %w", s.key, err)
	}
	return nil
}
