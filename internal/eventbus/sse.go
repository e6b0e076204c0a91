package eventbus

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stream is an SSE connection. Send never blocks: events are queued on a
// buffered channel drained by the handler goroutine.
type Stream struct {
	id     string
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

func newStream(id string, size int) *Stream {
	if size <= 0 {
		size = 64
	}
	return &Stream{id: id, ch: make(chan Event, size)}
}

// ID returns the connection id handed to the client in the connected event.
func (s *Stream) ID() string { return s.id }

// Send queues ev for the client.
func (s *Stream) Send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrConnClosed
	}
	select {
	case s.ch <- ev:
		return nil
	default:
		return ErrSlowConsumer
	}
}

func (s *Stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// TenantGuard decides whether the request may bind to tenantID and returns
// the tenant id to bind, possibly normalized.
type TenantGuard func(r *http.Request, tenantID string) (string, error)

// SSEHandler serves the event stream. Each request becomes one connection:
// attached unbound, told its id, optionally joined to the tenant named in
// the tenant_id query parameter, and removed when the request ends.
type SSEHandler struct {
	bus        *Bus
	bufferSize int
	keepalive  time.Duration
	guard      TenantGuard
}

// SSEOption configures an SSEHandler.
type SSEOption func(*SSEHandler)

// WithBufferSize sets the per-connection queue length.
func WithBufferSize(n int) SSEOption {
	return func(h *SSEHandler) { h.bufferSize = n }
}

// WithKeepalive sets the comment-line heartbeat interval. Non-positive
// values keep the default.
func WithKeepalive(d time.Duration) SSEOption {
	return func(h *SSEHandler) {
		if d > 0 {
			h.keepalive = d
		}
	}
}

// WithTenantGuard checks the tenant_id query parameter before joining.
func WithTenantGuard(g TenantGuard) SSEOption {
	return func(h *SSEHandler) { h.guard = g }
}

// NewSSEHandler creates a handler attached to bus.
func NewSSEHandler(bus *Bus, opts ...SSEOption) *SSEHandler {
	h := &SSEHandler{bus: bus, bufferSize: 64, keepalive: 25 * time.Second}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
	if tenantID != "" && h.guard != nil {
		var err error
		if tenantID, err = h.guard(r, tenantID); err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	stream := newStream(uuid.NewString(), h.bufferSize)
	h.bus.Attach(stream)
	defer func() {
		h.bus.Disconnect(stream)
		stream.close()
	}()

	if err := writeEvent(w, Event{Kind: "connected", Payload: map[string]string{"connection_id": stream.ID()}}); err != nil {
		return
	}
	flusher.Flush()

	if tenantID != "" {
		if err := h.bus.Join(stream, tenantID); err != nil {
			h.bus.log.Warn("join on connect failed", "conn_id", stream.ID(), "error", err)
		}
	}

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-stream.ch:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				h.bus.log.Debug("sse write failed", "conn_id", stream.ID(), "error", err)
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		// Unencodable payloads are dropped, not fatal to the stream.
		return nil
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n\n"))
	return err
}
