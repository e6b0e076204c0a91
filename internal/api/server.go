package api

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ignite/outreach-relay/internal/config"
	"github.com/ignite/outreach-relay/internal/engineclient"
	"github.com/ignite/outreach-relay/internal/eventbus"
	"github.com/ignite/outreach-relay/internal/notifications"
	"github.com/redis/go-redis/v9"
)

// Deps are the components the API serves. Engine, Tracker, DB and Redis are
// optional.
type Deps struct {
	Bus     *eventbus.Bus
	Engine  *engineclient.Client
	Tracker *notifications.Tracker
	DB      *sql.DB
	Redis   *redis.Client
}

// Server represents the API server
type Server struct {
	handler http.Handler

	mu     sync.Mutex
	server *http.Server
	closed bool
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, realtime config.RealtimeConfig, deps Deps) *Server {
	handlers := NewHandlers(deps.Bus, deps.Engine, deps.Tracker)
	health := NewHealthChecker(deps.DB, deps.Redis, deps.Engine, deps.Bus)
	sse := NewSSEHandler(deps.Bus,
		eventbus.WithBufferSize(realtime.BufferSize),
		eventbus.WithKeepalive(realtime.Keepalive()),
	)
	return &Server{
		handler: SetupRoutes(handlers, sse, health, cfg.AllowedOrigins),
	}
}

// ListenAndServe starts the HTTP server. After Shutdown it returns
// http.ErrServerClosed without listening.
func (s *Server) ListenAndServe(addr string) error {
	streams, cancelStreams := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// Event streams stay open indefinitely, so no write deadline.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return streams },
	}
	// Shutdown waits for handlers to return; open streams only return once
	// their request context ends.
	srv.RegisterOnShutdown(cancelStreams)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancelStreams()
		return http.ErrServerClosed
	}
	s.server = srv
	s.mu.Unlock()
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server. It may run before
// ListenAndServe, which then never starts listening.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
