package eventbus

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sseClient struct {
	resp   *http.Response
	reader *bufio.Reader
	cancel context.CancelFunc
}

func dialSSE(t *testing.T, url string) *sseClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		resp.Body.Close()
	})
	return &sseClient{resp: resp, reader: bufio.NewReader(resp.Body), cancel: cancel}
}

// next returns the next data frame, skipping keepalive comments.
func (c *sseClient) next(t *testing.T) Event {
	t.Helper()
	for {
		line, err := c.reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev struct {
			Kind    string          `json:"event"`
			Payload json.RawMessage `json:"payload"`
		}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		return Event{Kind: ev.Kind, Payload: ev.Payload}
	}
}

func connectionID(t *testing.T, ev Event) string {
	t.Helper()
	require.Equal(t, "connected", ev.Kind)
	var p struct {
		ConnectionID string `json:"connection_id"`
	}
	require.NoError(t, json.Unmarshal(ev.Payload.(json.RawMessage), &p))
	require.NotEmpty(t, p.ConnectionID)
	return p.ConnectionID
}

func TestSSEHandlerDeliversTenantEvents(t *testing.T) {
	bus := New()
	srv := httptest.NewServer(NewSSEHandler(bus))
	defer srv.Close()

	client := dialSSE(t, srv.URL)
	assert.Equal(t, "text/event-stream", client.resp.Header.Get("Content-Type"))

	id := connectionID(t, client.next(t))
	assert.Equal(t, StateUnbound, bus.Registry().State(id))

	require.NoError(t, bus.JoinByID(id, "acme"))
	require.Equal(t, 1, bus.Emit("acme", "replied", map[string]string{"name": "Dana"}))

	ev := client.next(t)
	assert.Equal(t, "replied", ev.Kind)
	assert.JSONEq(t, `{"name":"Dana"}`, string(ev.Payload.(json.RawMessage)))
}

func TestSSEHandlerJoinsFromQuery(t *testing.T) {
	bus := New()
	srv := httptest.NewServer(NewSSEHandler(bus))
	defer srv.Close()

	client := dialSSE(t, srv.URL+"?tenant_id=acme")
	id := connectionID(t, client.next(t))

	require.Eventually(t, func() bool { return bus.Registry().State(id) == StateBound }, time.Second, 5*time.Millisecond)
	tenant, _ := bus.Registry().TenantOf(id)
	assert.Equal(t, "acme", tenant)
}

func TestSSEHandlerGuardRejectsTenant(t *testing.T) {
	bus := New()
	guard := func(r *http.Request, tenantID string) (string, error) {
		if r.Header.Get("X-Organization-ID") != tenantID {
			return "", errors.New("tenant mismatch")
		}
		return tenantID, nil
	}
	srv := httptest.NewServer(NewSSEHandler(bus, WithTenantGuard(guard)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?tenant_id=acme")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, bus.Registry().Len())
}

func TestSSEHandlerKeepalive(t *testing.T) {
	bus := New()
	srv := httptest.NewServer(NewSSEHandler(bus, WithKeepalive(10*time.Millisecond)))
	defer srv.Close()

	client := dialSSE(t, srv.URL)
	connectionID(t, client.next(t))

	for {
		line, err := client.reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, ": keepalive") {
			return
		}
	}
}

func TestSSEHandlerRemovesConnectionOnClose(t *testing.T) {
	bus := New()
	srv := httptest.NewServer(NewSSEHandler(bus))
	defer srv.Close()

	client := dialSSE(t, srv.URL+"?tenant_id=acme")
	id := connectionID(t, client.next(t))
	require.Eventually(t, func() bool { return bus.Registry().Members("acme") == 1 }, time.Second, 5*time.Millisecond)

	client.cancel()
	require.Eventually(t, func() bool { return bus.Registry().State(id) == StateClosed }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, bus.Emit("acme", "late", nil))
}

func TestStreamSend(t *testing.T) {
	s := newStream("s", 1)
	require.NoError(t, s.Send(Event{Kind: "a"}))
	assert.ErrorIs(t, s.Send(Event{Kind: "b"}), ErrSlowConsumer)

	s.close()
	s.close()
	assert.ErrorIs(t, s.Send(Event{Kind: "c"}), ErrConnClosed)
}
