package eventbus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/outreach-relay/internal/pkg/logger"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// pg_notify rejects payloads of 8000 bytes or more.
const maxNotifyPayload = 7999

// ErrPayloadTooLarge is returned when an envelope exceeds the pg_notify limit.
var ErrPayloadTooLarge = errors.New("event payload exceeds pg_notify limit")

// Publisher forwards an emit request to every replica's bus.
type Publisher interface {
	Publish(ctx context.Context, tenantID, kind string, payload any) error
}

// PGRelay feeds envelopes received on a PostgreSQL NOTIFY channel into the bus.
type PGRelay struct {
	connStr      string
	channel      string
	bus          *Bus
	pingInterval time.Duration
}

// NewPGRelay creates a relay listening on channel.
func NewPGRelay(connStr, channel string, bus *Bus) *PGRelay {
	return &PGRelay{connStr: connStr, channel: channel, bus: bus, pingInterval: 90 * time.Second}
}

// Run listens until ctx is done. pq.Listener reconnects on its own; a nil
// notification marks a reconnect and is skipped.
func (r *PGRelay) Run(ctx context.Context) error {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("pg listener error", "channel", r.channel, "error", err)
		}
	}

	listener := pq.NewListener(r.connStr, 10*time.Second, time.Minute, reportProblem)
	defer listener.Close()

	if err := listener.Listen(r.channel); err != nil {
		return fmt.Errorf("listen %s: %w", r.channel, err)
	}
	logger.Info("pg relay listening", "channel", r.channel)

	ticker := time.NewTicker(r.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-listener.Notify:
			if !ok {
				return nil
			}
			if n != nil {
				relay(r.bus, "pg", []byte(n.Extra))
			}
		case <-ticker.C:
			go listener.Ping()
		}
	}
}

// PGPublisher publishes envelopes with pg_notify.
type PGPublisher struct {
	db      *sql.DB
	channel string
}

// NewPGPublisher creates a publisher on channel.
func NewPGPublisher(db *sql.DB, channel string) *PGPublisher {
	return &PGPublisher{db: db, channel: channel}
}

// Publish sends one envelope.
func (p *PGPublisher) Publish(ctx context.Context, tenantID, kind string, payload any) error {
	data, err := EncodeEnvelope(tenantID, kind, payload)
	if err != nil {
		return err
	}
	if len(data) > maxNotifyPayload {
		return fmt.Errorf("publish %s (%d bytes): %w", kind, len(data), ErrPayloadTooLarge)
	}
	if _, err := p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", p.channel, string(data)); err != nil {
		return fmt.Errorf("pg_notify %s: %w", p.channel, err)
	}
	return nil
}

// RedisRelay feeds envelopes received on a Redis pub/sub channel into the bus.
type RedisRelay struct {
	client  *redis.Client
	channel string
	bus     *Bus
	ready   chan struct{}
}

// NewRedisRelay creates a relay subscribed to channel.
func NewRedisRelay(client *redis.Client, channel string, bus *Bus) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, bus: bus, ready: make(chan struct{})}
}

// Ready is closed once the subscription is confirmed.
func (r *RedisRelay) Ready() <-chan struct{} { return r.ready }

// Run subscribes and relays until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	close(r.ready)
	logger.Info("redis relay subscribed", "channel", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			relay(r.bus, "redis", []byte(msg.Payload))
		}
	}
}

// RedisPublisher publishes envelopes on a Redis channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher creates a publisher on channel.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// Publish sends one envelope.
func (p *RedisPublisher) Publish(ctx context.Context, tenantID, kind string, payload any) error {
	data, err := EncodeEnvelope(tenantID, kind, payload)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", p.channel, err)
	}
	return nil
}

// LocalPublisher emits straight onto an in-process bus.
type LocalPublisher struct {
	Bus *Bus
}

// Publish emits without leaving the process.
func (p LocalPublisher) Publish(_ context.Context, tenantID, kind string, payload any) error {
	if tenantID == "" {
		return ErrEmptyTenant
	}
	p.Bus.Emit(tenantID, kind, payload)
	return nil
}

func relay(bus *Bus, source string, data []byte) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		logger.Warn("dropping relayed event", "source", source, "error", err)
		return
	}
	n := bus.Dispatch(env)
	logger.Debug("relayed event", "source", source, "tenant_id", env.TenantID, "event", env.Event, "delivered", n)
}
