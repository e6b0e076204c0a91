// Package eventbus pushes real-time events to the browser connections of a
// single tenant, fed locally or through pg_notify and Redis relays.
package eventbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ignite/outreach-relay/internal/pkg/logger"
)

var (
	// ErrEmptyTenant is returned by Join for a blank tenant id.
	ErrEmptyTenant = errors.New("tenant id is required")
	// ErrUnknownConnection is returned when a connection id is not live.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrConnClosed is returned by Send on a connection that has gone away.
	ErrConnClosed = errors.New("connection closed")
	// ErrSlowConsumer is returned by Send when the connection's buffer is full.
	ErrSlowConsumer = errors.New("connection buffer full")
)

// Event is the message pushed to clients.
type Event struct {
	Kind    string `json:"event"`
	Payload any    `json:"payload"`
}

// Bus scopes every event to the connections of one tenant. It is safe for
// concurrent use; Join, Leave, Disconnect and Emit may be called from any
// goroutine.
type Bus struct {
	registry *Registry
	log      *logger.Logger
}

// New creates a bus with an empty registry.
func New() *Bus {
	return &Bus{
		registry: NewRegistry(),
		log:      logger.Default().With("component", "eventbus"),
	}
}

// Registry exposes the underlying connection registry.
func (b *Bus) Registry() *Registry { return b.registry }

// Attach registers a freshly opened connection as unbound.
func (b *Bus) Attach(conn Conn) {
	b.registry.Attach(conn)
}

// Join binds an attached conn to tenantID. A connection already bound
// elsewhere is moved; it never belongs to two tenants. Joining a connection
// that was never attached or has disconnected fails with
// ErrUnknownConnection.
func (b *Bus) Join(conn Conn, tenantID string) error {
	return b.JoinByID(conn.ID(), tenantID)
}

// JoinByID binds a live connection looked up by id.
func (b *Bus) JoinByID(connID, tenantID string) error {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return ErrEmptyTenant
	}
	prev, err := b.registry.BindByID(connID, tenantID)
	if err != nil {
		return fmt.Errorf("join %s: %w", connID, err)
	}
	switch {
	case prev == tenantID:
	case prev != "":
		b.log.Info("connection moved tenant", "conn_id", connID, "from", prev, "to", tenantID)
	default:
		b.log.Debug("connection joined tenant", "conn_id", connID, "tenant_id", tenantID)
	}
	return nil
}

// Leave unbinds conn. Leaving while unbound is a no-op.
func (b *Bus) Leave(conn Conn) {
	if prev := b.registry.Unbind(conn); prev != "" {
		b.log.Debug("connection left tenant", "conn_id", conn.ID(), "tenant_id", prev)
	}
}

// LeaveByID unbinds a live connection looked up by id.
func (b *Bus) LeaveByID(connID string) error {
	conn, ok := b.registry.Lookup(connID)
	if !ok {
		return fmt.Errorf("leave %s: %w", connID, ErrUnknownConnection)
	}
	b.Leave(conn)
	return nil
}

// Disconnect removes conn from the registry. It is idempotent.
func (b *Bus) Disconnect(conn Conn) {
	if prev, ok := b.registry.Remove(conn.ID()); ok && prev != "" {
		b.log.Debug("connection closed", "conn_id", conn.ID(), "tenant_id", prev)
	}
}

// Emit delivers an event to every connection bound to tenantID at the moment
// of the call and returns how many accepted it. Delivery is fire-and-forget:
// a connection that fails or panics is logged and skipped.
func (b *Bus) Emit(tenantID, kind string, payload any) int {
	tenantID = strings.TrimSpace(tenantID)
	if payload == nil {
		payload = map[string]any{}
	}
	ev := Event{Kind: kind, Payload: payload}

	delivered := 0
	for _, conn := range b.registry.Snapshot(tenantID) {
		err := deliver(conn, ev)
		if err == nil {
			delivered++
			continue
		}
		if errors.Is(err, ErrConnClosed) {
			b.Disconnect(conn)
			continue
		}
		b.log.Warn("event delivery failed", "conn_id", conn.ID(), "tenant_id", tenantID, "event", kind, "error", err)
	}
	return delivered
}

func deliver(conn Conn, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in send: %v", r)
		}
	}()
	return conn.Send(ev)
}

// Envelope is the cross-process form of an emit request, carried over
// pg_notify or Redis pub/sub.
type Envelope struct {
	TenantID string          `json:"tenant_id"`
	Event    string          `json:"event"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// DecodeEnvelope parses and validates a relayed emit request.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if strings.TrimSpace(env.TenantID) == "" {
		return Envelope{}, fmt.Errorf("decode envelope: %w", ErrEmptyTenant)
	}
	if env.Event == "" {
		return Envelope{}, errors.New("decode envelope: event name is required")
	}
	return env, nil
}

// EncodeEnvelope builds the wire form of an emit request.
func EncodeEnvelope(tenantID, kind string, payload any) ([]byte, error) {
	env := Envelope{TenantID: tenantID, Event: kind}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// Dispatch emits a relayed envelope locally.
func (b *Bus) Dispatch(env Envelope) int {
	var payload any
	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		payload = env.Payload
	}
	return b.Emit(env.TenantID, env.Event, payload)
}
