package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ignite/outreach-relay/internal/engineclient"
	"github.com/ignite/outreach-relay/internal/eventbus"
	"github.com/ignite/outreach-relay/internal/notifications"
	"github.com/ignite/outreach-relay/internal/pkg/httputil"
	"github.com/ignite/outreach-relay/internal/pkg/logger"
	"github.com/ignite/outreach-relay/internal/timezone"
)

// Handlers contains the HTTP handlers for the relay API.
type Handlers struct {
	bus     *eventbus.Bus
	engine  *engineclient.Client
	tracker *notifications.Tracker
}

// NewHandlers creates a new Handlers instance. engine and tracker may be nil
// when the relay runs without an engine.
func NewHandlers(bus *eventbus.Bus, engine *engineclient.Client, tracker *notifications.Tracker) *Handlers {
	return &Handlers{bus: bus, engine: engine, tracker: tracker}
}

// EngineStatusResponse is the dashboard's live/degraded indicator.
type EngineStatusResponse struct {
	Mode string `json:"mode"`
	engineclient.HealthState
}

// GetEngineStatus returns the last probe result. It never calls the engine.
//
//	GET /api/engine/status
func (h *Handlers) GetEngineStatus(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		httputil.OK(w, EngineStatusResponse{Mode: "degraded", HealthState: engineclient.HealthState{Status: "not_configured"}})
		return
	}
	state := h.engine.Health()
	httputil.OK(w, EngineStatusResponse{Mode: state.Mode(), HealthState: state})
}

type membershipRequest struct {
	ConnectionID string `json:"connection_id"`
	TenantID     string `json:"tenant_id,omitempty"`
}

// JoinTenant binds an open event stream to the caller's tenant. A declared
// tenant_id must match the caller's organization.
//
//	POST /realtime/join
func (h *Handlers) JoinTenant(w http.ResponseWriter, r *http.Request) {
	var req membershipRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ConnectionID) == "" {
		httputil.BadRequest(w, "connection_id is required")
		return
	}

	tenant, err := ExtractTenantID(r)
	if err != nil {
		httputil.Unauthorized(w, err.Error())
		return
	}
	if req.TenantID != "" {
		if tenant, err = authorizeTenant(r, req.TenantID); err != nil {
			httputil.Forbidden(w, err.Error())
			return
		}
	}

	if err := h.bus.JoinByID(req.ConnectionID, tenant); err != nil {
		if errors.Is(err, eventbus.ErrUnknownConnection) {
			httputil.NotFound(w, "connection not found")
			return
		}
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.OK(w, map[string]any{
		"connection_id": req.ConnectionID,
		"tenant_id":     tenant,
		"state":         eventbus.StateBound.String(),
	})
}

// LeaveTenant unbinds a stream. The stream stays open.
//
//	POST /realtime/leave
func (h *Handlers) LeaveTenant(w http.ResponseWriter, r *http.Request) {
	var req membershipRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if tenant, bound := h.bus.Registry().TenantOf(req.ConnectionID); bound {
		if _, err := authorizeTenant(r, tenant); err != nil {
			httputil.Forbidden(w, err.Error())
			return
		}
	}
	if err := h.bus.LeaveByID(req.ConnectionID); err != nil {
		httputil.NotFound(w, "connection not found")
		return
	}
	httputil.OK(w, map[string]any{
		"connection_id": req.ConnectionID,
		"state":         eventbus.StateUnbound.String(),
	})
}

// GetNotifications returns the feed with the session's unseen count. Reading
// never advances the checkpoint.
//
//	GET /api/notifications
func (h *Handlers) GetNotifications(w http.ResponseWriter, r *http.Request) {
	if h.tracker == nil {
		httputil.ErrorCode(w, http.StatusServiceUnavailable, "notifications_disabled", "notifications are not configured")
		return
	}
	summary, err := h.tracker.Summary(r.Context(), sessionKey(r), forwardedHeaders(r))
	if err != nil {
		h.notificationError(w, r, err)
		return
	}
	if summary.Records == nil {
		summary.Records = []notifications.Record{}
	}
	httputil.OK(w, summary)
}

// AcknowledgeNotifications moves the session checkpoint to now.
//
//	POST /api/notifications/ack
func (h *Handlers) AcknowledgeNotifications(w http.ResponseWriter, r *http.Request) {
	if h.tracker == nil {
		httputil.ErrorCode(w, http.StatusServiceUnavailable, "notifications_disabled", "notifications are not configured")
		return
	}
	checkpoint, err := h.tracker.Acknowledge(r.Context(), sessionKey(r))
	if err != nil {
		h.notificationError(w, r, err)
		return
	}
	httputil.OK(w, map[string]any{"checkpoint": checkpoint, "unseen": 0})
}

func (h *Handlers) notificationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, notifications.ErrNoSession):
		httputil.BadRequest(w, "session id is required (X-Session-ID header or session cookie)")
	case errors.Is(err, engineclient.ErrCancelled):
		logger.Debug("notification request cancelled", "path", r.URL.Path)
	case errors.Is(err, engineclient.ErrEngineUnavailable):
		httputil.Unavailable(w, "engine_unavailable", err)
	default:
		httputil.InternalError(w, err)
	}
}

// ConvertResponse describes one HH:MM conversion between two zones.
type ConvertResponse struct {
	Time       string `json:"time"`
	Converted  string `json:"converted"`
	DayShift   int    `json:"day_shift"`
	From       string `json:"from"`
	To         string `json:"to"`
	FromOffset string `json:"from_offset"`
	ToOffset   string `json:"to_offset"`
	FromKnown  bool   `json:"from_known"`
	ToKnown    bool   `json:"to_known"`
}

// ConvertTime converts a wall-clock time between timezone names. Unknown
// names resolve to UTC and are flagged, never rejected.
//
//	GET /api/timezones/convert?time=HH:MM&from=&to=
func (h *Handlers) ConvertTime(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hhmm, from, to := q.Get("time"), q.Get("from"), q.Get("to")
	if hhmm == "" {
		httputil.BadRequest(w, "time is required")
		return
	}
	httputil.OK(w, ConvertResponse{
		Time:       hhmm,
		Converted:  timezone.Convert(hhmm, from, to),
		DayShift:   timezone.DayShift(hhmm, from, to),
		From:       from,
		To:         to,
		FromOffset: timezone.FormatOffset(timezone.ResolveOffset(from)),
		ToOffset:   timezone.FormatOffset(timezone.ResolveOffset(to)),
		FromKnown:  timezone.Known(from),
		ToKnown:    timezone.Known(to),
	})
}

// ConvertWindow expresses a sending window in another zone. With at, it also
// reports whether that time in the target zone falls inside the window.
//
//	GET /api/timezones/window?start=HH:MM&end=HH:MM&from=&to=[&at=HH:MM]
func (h *Handlers) ConvertWindow(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, end := q.Get("start"), q.Get("end")
	if start == "" || end == "" {
		httputil.BadRequest(w, "start and end are required")
		return
	}
	win := timezone.ConvertWindow(start, end, q.Get("from"), q.Get("to"))
	resp := map[string]any{
		"start":          win.Start,
		"end":            win.End,
		"wraps_midnight": win.WrapsMidnight(),
	}
	if at := q.Get("at"); at != "" {
		resp["at"] = at
		resp["open"] = win.Contains(at)
	}
	httputil.OK(w, resp)
}
