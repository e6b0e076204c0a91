package eventbus

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client
}

func TestRedisRelayDeliversPublishedEvents(t *testing.T) {
	rdb := setupTestRedis(t)
	bus := New()
	c := newConn("c")
	bus.Attach(c)
	require.NoError(t, bus.Join(c, "acme"))

	relay := NewRedisRelay(rdb, "tenant_events", bus)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	select {
	case <-relay.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("relay never subscribed")
	}

	pub := NewRedisPublisher(rdb, "tenant_events")
	require.NoError(t, pub.Publish(ctx, "beta", "ignored", nil))
	require.NoError(t, pub.Publish(ctx, "acme", "meeting_scheduled", map[string]string{"at": "10:30"}))
	require.NoError(t, rdb.Publish(ctx, "tenant_events", "garbage").Err())

	require.Eventually(t, func() bool { return len(c.events()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "meeting_scheduled", c.events()[0].Kind)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestPGPublisherUsesPGNotify(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`SELECT pg_notify\(\$1, \$2\)`).
		WithArgs("tenant_events", `{"tenant_id":"acme","event":"replied","payload":{"id":"r1"}}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	pub := NewPGPublisher(db, "tenant_events")
	require.NoError(t, pub.Publish(context.Background(), "acme", "replied", map[string]string{"id": "r1"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGPublisherWrapsDatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`SELECT pg_notify`).WillReturnError(errors.New("connection reset"))

	pub := NewPGPublisher(db, "tenant_events")
	err = pub.Publish(context.Background(), "acme", "replied", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pg_notify tenant_events")
}

func TestPGPublisherRejectsOversizedPayload(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	pub := NewPGPublisher(db, "tenant_events")
	err = pub.Publish(context.Background(), "acme", "bulk", strings.Repeat("x", 9000))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelayDropsMalformedEnvelopes(t *testing.T) {
	bus := New()
	c := newConn("c")
	bus.Attach(c)
	require.NoError(t, bus.Join(c, "acme"))

	relay(bus, "test", []byte(`{"event":"x"}`))
	relay(bus, "test", []byte(`{{`))
	assert.Empty(t, c.events())

	relay(bus, "test", []byte(`{"tenant_id":"acme","event":"mail_opened"}`))
	assert.Len(t, c.events(), 1)
}
