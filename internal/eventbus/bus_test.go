package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConn struct {
	id  string
	mu  sync.Mutex
	got []Event
	err error
	pan bool
}

func newConn(id string) *recordingConn { return &recordingConn{id: id} }

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Send(ev Event) error {
	if c.pan {
		panic("socket exploded")
	}
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, ev)
	return nil
}

func (c *recordingConn) events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.got...)
}

func TestEmitReachesOnlyTenantMembers(t *testing.T) {
	bus := New()
	a1, a2, b1, idle := newConn("a1"), newConn("a2"), newConn("b1"), newConn("idle")
	bus.Attach(idle)
	bus.Attach(a1)
	require.NoError(t, bus.Join(a1, "acme"))
	bus.Attach(a2)
	require.NoError(t, bus.Join(a2, "acme"))
	bus.Attach(b1)
	require.NoError(t, bus.Join(b1, "beta"))

	n := bus.Emit("acme", "reply_received", map[string]string{"prospect": "p-9"})
	assert.Equal(t, 2, n)

	require.Len(t, a1.events(), 1)
	assert.Equal(t, "reply_received", a1.events()[0].Kind)
	assert.Len(t, a2.events(), 1)
	assert.Empty(t, b1.events())
	assert.Empty(t, idle.events(), "unbound connections receive nothing")
}

func TestEmitToTenantWithoutMembers(t *testing.T) {
	bus := New()
	assert.Equal(t, 0, bus.Emit("ghost", "anything", nil))
}

func TestEmitNilPayloadBecomesEmptyObject(t *testing.T) {
	bus := New()
	c := newConn("c")
	bus.Attach(c)
	require.NoError(t, bus.Join(c, "acme"))
	bus.Emit("acme", "ping", nil)
	require.Len(t, c.events(), 1)
	assert.Equal(t, map[string]any{}, c.events()[0].Payload)
}

func TestJoinMovesConnection(t *testing.T) {
	bus := New()
	c := newConn("c")
	bus.Attach(c)
	require.NoError(t, bus.Join(c, "acme"))
	require.NoError(t, bus.Join(c, "beta"))

	assert.Equal(t, 0, bus.Registry().Members("acme"))
	assert.Equal(t, 1, bus.Registry().Members("beta"))
	assert.Equal(t, []string{"beta"}, bus.Registry().Tenants())

	bus.Emit("acme", "old", nil)
	bus.Emit("beta", "new", nil)
	require.Len(t, c.events(), 1)
	assert.Equal(t, "new", c.events()[0].Kind)
}

func TestJoinSameTenantTwiceIsIdempotent(t *testing.T) {
	bus := New()
	c := newConn("c")
	bus.Attach(c)
	require.NoError(t, bus.Join(c, "acme"))
	require.NoError(t, bus.Join(c, "acme"))
	assert.Equal(t, 1, bus.Registry().Members("acme"))
	assert.Equal(t, 1, bus.Emit("acme", "x", nil))
}

func TestJoinRejectsEmptyTenant(t *testing.T) {
	bus := New()
	c := newConn("c")
	bus.Attach(c)
	assert.ErrorIs(t, bus.Join(c, "  "), ErrEmptyTenant)
	assert.Equal(t, StateUnbound, bus.Registry().State("c"))
}

func TestLeaveAndState(t *testing.T) {
	bus := New()
	c := newConn("c")

	bus.Leave(c) // unknown, no-op
	assert.Equal(t, StateClosed, bus.Registry().State("c"))

	bus.Attach(c)
	assert.Equal(t, StateUnbound, bus.Registry().State("c"))
	bus.Leave(c) // unbound, no-op
	assert.Equal(t, StateUnbound, bus.Registry().State("c"))

	require.NoError(t, bus.Join(c, "acme"))
	assert.Equal(t, StateBound, bus.Registry().State("c"))
	tenant, ok := bus.Registry().TenantOf("c")
	assert.True(t, ok)
	assert.Equal(t, "acme", tenant)

	bus.Leave(c)
	assert.Equal(t, StateUnbound, bus.Registry().State("c"))
	assert.Equal(t, 0, bus.Emit("acme", "x", nil))

	bus.Disconnect(c)
	bus.Disconnect(c)
	assert.Equal(t, StateClosed, bus.Registry().State("c"))
	assert.Equal(t, 0, bus.Registry().Len())
}

func TestJoinAndLeaveByID(t *testing.T) {
	bus := New()
	c := newConn("c")

	assert.ErrorIs(t, bus.JoinByID("c", "acme"), ErrUnknownConnection)
	bus.Attach(c)
	require.NoError(t, bus.JoinByID("c", "acme"))
	assert.Equal(t, 1, bus.Registry().Members("acme"))

	require.NoError(t, bus.LeaveByID("c"))
	assert.Equal(t, StateUnbound, bus.Registry().State("c"))
	assert.ErrorIs(t, bus.LeaveByID("nope"), ErrUnknownConnection)
}

func TestClosedConnectionCannotRejoin(t *testing.T) {
	bus := New()
	c := newConn("c")
	bus.Attach(c)
	bus.Disconnect(c)

	assert.ErrorIs(t, bus.Join(c, "tenant-a"), ErrUnknownConnection)
	assert.ErrorIs(t, bus.JoinByID("c", "tenant-a"), ErrUnknownConnection)
	assert.Equal(t, StateClosed, bus.Registry().State("c"))
	assert.Equal(t, 0, bus.Registry().Members("tenant-a"))
	assert.Equal(t, 0, bus.Emit("tenant-a", "x", nil))
	assert.Empty(t, c.events())
}

func TestJoinRacingDisconnectLeavesConnectionClosed(t *testing.T) {
	bus := New()
	for i := 0; i < 200; i++ {
		c := newConn(fmt.Sprintf("c%d", i))
		bus.Attach(c)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = bus.JoinByID(c.ID(), "tenant-a")
		}()
		go func() {
			defer wg.Done()
			bus.Disconnect(c)
		}()
		wg.Wait()

		require.Equal(t, StateClosed, bus.Registry().State(c.ID()))
	}
	assert.Equal(t, 0, bus.Registry().Members("tenant-a"))
	assert.Equal(t, 0, bus.Emit("tenant-a", "x", nil))
}

func TestFailingConnectionDoesNotBlockOthers(t *testing.T) {
	bus := New()
	bad := newConn("bad")
	bad.err = ErrSlowConsumer
	boom := newConn("boom")
	boom.pan = true
	good := newConn("good")
	for _, c := range []*recordingConn{bad, boom, good} {
		bus.Attach(c)
		require.NoError(t, bus.Join(c, "acme"))
	}

	assert.Equal(t, 1, bus.Emit("acme", "mail_opened", nil))
	assert.Len(t, good.events(), 1)
	assert.Equal(t, StateBound, bus.Registry().State("bad"), "a slow consumer stays registered")
}

func TestClosedConnectionIsEvicted(t *testing.T) {
	bus := New()
	gone := newConn("gone")
	gone.err = fmt.Errorf("write: %w", ErrConnClosed)
	bus.Attach(gone)
	require.NoError(t, bus.Join(gone, "acme"))

	assert.Equal(t, 0, bus.Emit("acme", "x", nil))
	assert.Equal(t, StateClosed, bus.Registry().State("gone"))
}

func TestConcurrentMembershipAndEmit(t *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := newConn(fmt.Sprintf("c%d", i))
			bus.Attach(c)
			tenants := []string{"acme", "beta", "gamma"}
			for j := 0; j < 50; j++ {
				_ = bus.Join(c, tenants[(i+j)%len(tenants)])
				bus.Emit(tenants[j%len(tenants)], "tick", j)
				if j%7 == 0 {
					bus.Leave(c)
				}
			}
			bus.Disconnect(c)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, bus.Registry().Len())
	assert.Empty(t, bus.Registry().Tenants())
}

func TestEnvelopeRoundTrip(t *testing.T) {
	data, err := EncodeEnvelope("acme", "meeting_scheduled", map[string]int{"n": 1})
	require.NoError(t, err)

	env, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, "acme", env.TenantID)
	assert.Equal(t, "meeting_scheduled", env.Event)
	assert.JSONEq(t, `{"n":1}`, string(env.Payload))

	_, err = DecodeEnvelope([]byte(`{"event":"x"}`))
	assert.ErrorIs(t, err, ErrEmptyTenant)
	_, err = DecodeEnvelope([]byte(`{"tenant_id":"acme"}`))
	assert.Error(t, err)
	_, err = DecodeEnvelope([]byte(`not json`))
	assert.Error(t, err)
}

func TestDispatchEmitsRawPayload(t *testing.T) {
	bus := New()
	c := newConn("c")
	bus.Attach(c)
	require.NoError(t, bus.Join(c, "acme"))

	env, err := DecodeEnvelope([]byte(`{"tenant_id":"acme","event":"replied","payload":{"id":"r1"}}`))
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Dispatch(env))

	require.Len(t, c.events(), 1)
	raw, ok := c.events()[0].Payload.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"r1"}`, string(raw))
}

func TestDispatchNullPayloadBecomesEmptyObject(t *testing.T) {
	bus := New()
	c := newConn("c")
	bus.Attach(c)
	require.NoError(t, bus.Join(c, "acme"))

	env, err := DecodeEnvelope([]byte(`{"tenant_id":" acme ","event":"ping","payload":null}`))
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Dispatch(env))
	assert.Equal(t, map[string]any{}, c.events()[0].Payload)
}

func TestLocalPublisher(t *testing.T) {
	bus := New()
	c := newConn("c")
	bus.Attach(c)
	require.NoError(t, bus.Join(c, "acme"))

	p := LocalPublisher{Bus: bus}
	require.NoError(t, p.Publish(context.Background(), "acme", "x", nil))
	assert.Len(t, c.events(), 1)
	assert.ErrorIs(t, p.Publish(context.Background(), "", "x", nil), ErrEmptyTenant)
}
