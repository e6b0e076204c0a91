package notifications

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/outreach-relay/internal/pkg/logger"
)

// ErrNoSession is returned when no session key identifies the checkpoint.
var ErrNoSession = errors.New("session key is required")

// Summary is what the notification panel shows.
type Summary struct {
	Records    []Record   `json:"records"`
	Unseen     int        `json:"unseen"`
	Checkpoint *time.Time `json:"checkpoint,omitempty"`
	Messages   []Message  `json:"messages,omitempty"`
}

// Tracker combines a feed with a per-session checkpoint. Reading never moves
// the checkpoint; only Acknowledge does.
type Tracker struct {
	feed     Feed
	store    CheckpointStore
	renderer *Renderer
	now      func() time.Time
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithRenderer attaches rendered messages to summaries.
func WithRenderer(r *Renderer) TrackerOption {
	return func(t *Tracker) { t.renderer = r }
}

// WithNow replaces the clock used by Acknowledge.
func WithNow(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker over feed and store.
func NewTracker(feed Feed, store CheckpointStore, opts ...TrackerOption) *Tracker {
	t := &Tracker{feed: feed, store: store, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Summary fetches the feed and counts records newer than the session's
// checkpoint.
func (t *Tracker) Summary(ctx context.Context, session string, header http.Header) (Summary, error) {
	if session == "" {
		return Summary{}, ErrNoSession
	}
	records, err := t.feed.Fetch(ctx, header)
	if err != nil {
		return Summary{}, err
	}

	var checkpoint *time.Time
	cp, ok, err := t.store.Load(ctx, session)
	if err != nil {
		return Summary{}, err
	}
	if ok {
		checkpoint = &cp
	}

	s := Summary{
		Records:    records,
		Unseen:     UnseenCount(records, checkpoint),
		Checkpoint: checkpoint,
	}
	if t.renderer != nil {
		s.Messages = t.renderer.Messages(records)
	}
	return s, nil
}

// Acknowledge marks everything up to now as seen for session.
func (t *Tracker) Acknowledge(ctx context.Context, session string) (time.Time, error) {
	if session == "" {
		return time.Time{}, ErrNoSession
	}
	now := t.now().UTC()
	if err := t.store.Save(ctx, session, now); err != nil {
		return time.Time{}, fmt.Errorf("acknowledge: %w", err)
	}
	logger.Debug("notifications acknowledged", "session", session, "checkpoint", now)
	return now, nil
}
