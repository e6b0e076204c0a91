package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/ignite/outreach-relay/internal/config"
	"github.com/ignite/outreach-relay/internal/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBareServer() *Server {
	return NewServer(config.ServerConfig{}, config.RealtimeConfig{}, Deps{Bus: eventbus.New()})
}

func serveAsync(s *Server) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe("127.0.0.1:0") }()
	return done
}

func TestShutdownBeforeListenStopsServer(t *testing.T) {
	s := newBareServer()
	require.NoError(t, s.Shutdown(context.Background()))

	select {
	case err := <-serveAsync(s):
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("ListenAndServe kept running after Shutdown")
	}
}

func TestShutdownStopsRunningServer(t *testing.T) {
	s := newBareServer()
	done := serveAsync(s)

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.server != nil
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("ListenAndServe did not return after Shutdown")
	}
}
