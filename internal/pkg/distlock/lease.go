// Package distlock elects a single holder for a recurring job across
// dashboard replicas using Redis leases.
package distlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// acquireScript renews the lease when the caller already owns it and
// otherwise takes it only if free. The holder therefore keeps the lease for
// as long as it keeps acquiring within the TTL.
var acquireScript = redis.NewScript(`
	local cur = redis.call("get", KEYS[1])
	if cur == ARGV[1] then
		redis.call("pexpire", KEYS[1], ARGV[2])
		return 1
	end
	if cur then
		return 0
	end
	redis.call("set", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
`)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Lease is a renewable, owner-checked Redis lease. One Lease value represents
// one contender; it is not meant to be shared between goroutines that compete
// with each other.
type Lease struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
}

// NewLease creates a contender for the lease named key.
func NewLease(client *redis.Client, key string, ttl time.Duration) *Lease {
	b := make([]byte, 16)
	rand.Read(b)
	return &Lease{
		client: client,
		key:    fmt.Sprintf("lease:%s", key),
		owner:  hex.EncodeToString(b),
		ttl:    ttl,
	}
}

// Key returns the Redis key backing the lease.
func (l *Lease) Key() string { return l.key }

// Acquire takes or renews the lease. It returns false when another
// contender holds it.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	n, err := acquireScript.Run(ctx, l.client, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	return n == 1, nil
}

// Release gives the lease up if this contender still owns it.
func (l *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Err(); err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	return nil
}
