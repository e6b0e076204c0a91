package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ignite/outreach-relay/internal/eventbus"
)

// SetupRoutes configures all routes.
func SetupRoutes(h *Handlers, sse http.Handler, health *HealthChecker, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Server-Identity", "outreach-relay-v1.0")
			next.ServeHTTP(w, req)
		})
	})

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Organization-ID", "X-Session-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health (no tenant required)
	r.Get("/health", health.HandleHealth)
	r.Get("/health/live", health.HandleLiveness)
	r.Get("/health/ready", health.HandleReadiness)

	// Realtime. The stream itself opens unbound; binding requires a tenant.
	r.Route("/realtime", func(r chi.Router) {
		r.Get("/events", sse.ServeHTTP)
		r.Group(func(r chi.Router) {
			r.Use(RequireTenant)
			r.Post("/join", h.JoinTenant)
			r.Post("/leave", h.LeaveTenant)
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/engine/status", h.GetEngineStatus)

		r.Get("/notifications", h.GetNotifications)
		r.Post("/notifications/ack", h.AcknowledgeNotifications)

		r.Get("/timezones/convert", h.ConvertTime)
		r.Get("/timezones/window", h.ConvertWindow)
	})

	return r
}

// NewSSEHandler builds the event stream handler with the tenant check used by
// POST /realtime/join applied to the tenant_id query parameter.
func NewSSEHandler(bus *eventbus.Bus, opts ...eventbus.SSEOption) *eventbus.SSEHandler {
	return eventbus.NewSSEHandler(bus, append(opts, eventbus.WithTenantGuard(authorizeTenant))...)
}
