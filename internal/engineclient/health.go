package engineclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HealthState is the last known reachability of the engine. It is replaced
// as a whole on every probe and is read-only to consumers.
type HealthState struct {
	Healthy       bool      `json:"healthy"`
	Status        string    `json:"status,omitempty"`
	LastCheckedAt time.Time `json:"last_checked_at"`
	LastError     string    `json:"last_error,omitempty"`
	LatencyMillis int64     `json:"latency_ms"`
}

// Mode is the dashboard-facing classification of a health state.
func (h HealthState) Mode() string {
	if h.Healthy {
		return "live"
	}
	return "degraded"
}

type healthRecord struct {
	seq   uint64
	state HealthState
}

var healthyStatuses = map[string]bool{
	"ok":      true,
	"healthy": true,
	"up":      true,
	"alive":   true,
}

// Health returns the current health state. Before the first probe the state
// is unhealthy with status "unknown".
func (c *Client) Health() HealthState {
	if rec := c.health.Load(); rec != nil {
		return rec.state
	}
	return HealthState{Status: "unknown"}
}

// ProbeHealth issues one unretried GET to the health endpoint and records the
// outcome. Failures are captured in the returned state, never raised. If ctx
// is cancelled by the caller the probe is discarded and the state unchanged.
//
// Racing probes are ordered by start: a probe never overwrites the result of
// a probe that started after it.
func (c *Client) ProbeHealth(ctx context.Context) HealthState {
	seq := c.probeSeq.Add(1)
	state := c.probe(ctx)
	if ctx.Err() != nil {
		return c.Health()
	}
	c.storeHealth(seq, state)
	return c.Health()
}

// adoptHealth installs a state observed elsewhere (another replica's probe)
// as the newest observation.
func (c *Client) adoptHealth(state HealthState) {
	c.storeHealth(c.probeSeq.Add(1), state)
}

func (c *Client) storeHealth(seq uint64, state HealthState) {
	next := &healthRecord{seq: seq, state: state}
	for {
		cur := c.health.Load()
		if cur != nil && cur.seq > seq {
			return
		}
		if c.health.CompareAndSwap(cur, next) {
			return
		}
	}
}

func (c *Client) probe(ctx context.Context) HealthState {
	pctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	start := c.clock.Now()
	state := HealthState{}
	finish := func() HealthState {
		now := c.clock.Now()
		state.LastCheckedAt = now
		state.LatencyMillis = now.Sub(start).Milliseconds()
		return state
	}

	req, err := http.NewRequestWithContext(pctx, http.MethodGet, c.url(c.cfg.HealthPath, nil), nil)
	if err != nil {
		state.LastError = fmt.Sprintf("build health request: %v", err)
		return finish()
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		state.LastError = err.Error()
		return finish()
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		state.LastError = fmt.Sprintf("read health response: %v", err)
		return finish()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		state.LastError = fmt.Sprintf("health endpoint returned status %d", resp.StatusCode)
		return finish()
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		state.LastError = fmt.Sprintf("malformed health response: %v", err)
		return finish()
	}
	state.Status = strings.ToLower(strings.TrimSpace(body.Status))
	switch {
	case state.Status == "":
		state.LastError = "health response missing status field"
	case !healthyStatuses[state.Status]:
		state.LastError = fmt.Sprintf("engine reported status %q", state.Status)
	default:
		state.Healthy = true
	}
	return finish()
}
