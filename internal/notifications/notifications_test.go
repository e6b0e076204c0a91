package notifications

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ignite/outreach-relay/internal/engineclient"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return epoch.Add(time.Duration(sec) * time.Second) }

func recordsAt(secs ...int) []Record {
	out := make([]Record, len(secs))
	for i, s := range secs {
		out[i] = Record{ID: string(rune('a' + i)), Kind: KindReplied, Name: "Dana", OccurredAt: at(s)}
	}
	return out
}

func TestUnseenCount(t *testing.T) {
	records := recordsAt(10, 20, 30)
	cp := func(sec int) *time.Time { v := at(sec); return &v }

	assert.Equal(t, 3, UnseenCount(records, nil), "first visit sees everything as new")
	assert.Equal(t, 1, UnseenCount(records, cp(25)))
	assert.Equal(t, 0, UnseenCount(records, cp(30)), "a record at the checkpoint is seen")
	assert.Equal(t, 2, UnseenCount(records, cp(10)))
	assert.Equal(t, 3, UnseenCount(records, cp(5)))
	assert.Equal(t, 0, UnseenCount(records, cp(99)))
	assert.Equal(t, 0, UnseenCount(nil, cp(5)))
	assert.Equal(t, 0, UnseenCount(nil, nil))
}

func TestSortRecords(t *testing.T) {
	records := recordsAt(30, 10, 20)
	SortRecords(records)
	assert.Equal(t, []time.Time{at(10), at(20), at(30)}, []time.Time{records[0].OccurredAt, records[1].OccurredAt, records[2].OccurredAt})
}

func TestTrackerReadDoesNotAdvanceCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := at(25)
	tr := NewTracker(StaticFeed(recordsAt(10, 20, 30)), store, WithNow(func() time.Time { return now }))

	s, err := tr.Summary(ctx, "sess-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Unseen)
	assert.Nil(t, s.Checkpoint)

	s, err = tr.Summary(ctx, "sess-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Unseen, "reading twice changes nothing")

	acked, err := tr.Acknowledge(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, acked.Equal(now))

	s, err = tr.Summary(ctx, "sess-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Unseen)
	require.NotNil(t, s.Checkpoint)
	assert.True(t, s.Checkpoint.Equal(now))

	other, err := tr.Summary(ctx, "sess-2", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, other.Unseen, "checkpoints are per session")
}

func TestTrackerRepeatedAckAtSameInstant(t *testing.T) {
	ctx := context.Background()
	now := at(30)
	tr := NewTracker(StaticFeed(recordsAt(10, 20, 30)), NewMemoryStore(), WithNow(func() time.Time { return now }))

	for i := 0; i < 3; i++ {
		_, err := tr.Acknowledge(ctx, "s")
		require.NoError(t, err)
		s, err := tr.Summary(ctx, "s", nil)
		require.NoError(t, err)
		assert.Equal(t, 0, s.Unseen)
	}
}

func TestTrackerRequiresSession(t *testing.T) {
	tr := NewTracker(StaticFeed(nil), NewMemoryStore())
	_, err := tr.Summary(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = tr.Acknowledge(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoSession)
}

type failingStore struct{ err error }

func (s failingStore) Load(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, s.err
}

func (s failingStore) Save(context.Context, string, time.Time) error { return s.err }

func TestTrackerStoreErrors(t *testing.T) {
	boom := errors.New("store offline")
	tr := NewTracker(StaticFeed(recordsAt(1)), failingStore{err: boom})

	_, err := tr.Summary(context.Background(), "s", nil)
	assert.ErrorIs(t, err, boom)
	_, err = tr.Acknowledge(context.Background(), "s")
	assert.ErrorIs(t, err, boom)
}

func TestTrackerWithRenderer(t *testing.T) {
	r, err := NewRenderer(nil)
	require.NoError(t, err)
	tr := NewTracker(StaticFeed(recordsAt(10, 20)), NewMemoryStore(), WithRenderer(r))

	s, err := tr.Summary(context.Background(), "s", nil)
	require.NoError(t, err)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, "b", s.Messages[0].ID, "newest first")
	assert.Equal(t, "Dana replied to your email", s.Messages[0].Text)
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	store := NewRedisStore(rdb, "", 24*time.Hour)

	_, ok, err := store.Load(ctx, "sess")
	require.NoError(t, err)
	assert.False(t, ok)

	want := time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.FixedZone("EST", -5*3600))
	require.NoError(t, store.Save(ctx, "sess", want))

	got, ok, err := store.Load(ctx, "sess")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, want.Equal(got))

	raw, err := mr.Get("notifications:checkpoint:sess")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T14:30:00.123456789Z", raw)
	assert.Equal(t, 24*time.Hour, mr.TTL("notifications:checkpoint:sess"))

	require.NoError(t, mr.Set("notifications:checkpoint:bad", "yesterday"))
	_, _, err = store.Load(ctx, "bad")
	assert.Error(t, err)
}

func TestEngineFeed(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/api/notifications", r.URL.Path)
		w.Write([]byte(`{"notifications":[
			{"id":"2","kind":"replied","name":"Lee","occurred_at":"2026-03-01T10:00:00Z"},
			{"id":"1","kind":"mail_opened","name":"Ana","occurred_at":"2026-03-01T09:00:00Z"},
			{"id":"x","kind":"bounced","name":"Zed","occurred_at":"2026-03-01T11:00:00Z"},
			{"id":"3","kind":"meeting_scheduled","name":"Kim","occurred_at":"2026-03-01T12:00:00Z","meeting_time":"2026-03-04T15:00:00Z"}
		]}`))
	}))
	defer srv.Close()

	client, err := engineclient.New(engineclient.Config{
		BaseURL: srv.URL, MaxAttempts: 1, BackoffMultiplier: 1, AttemptTimeout: time.Second,
	})
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Authorization", "Bearer t")
	records, err := NewEngineFeed(client, "").Fetch(context.Background(), header)
	require.NoError(t, err)

	assert.Equal(t, "Bearer t", gotAuth)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"1", "2", "3"}, []string{records[0].ID, records[1].ID, records[2].ID})
	require.NotNil(t, records[2].MeetingTime)
}

func TestEngineFeedBareArrayAndFailure(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[{"id":"1","kind":"replied","occurred_at":"2026-03-01T09:00:00Z"}]`))
	}))
	defer srv.Close()

	client, err := engineclient.New(engineclient.Config{
		BaseURL: srv.URL, MaxAttempts: 2, BaseDelay: time.Millisecond, BackoffMultiplier: 1, AttemptTimeout: time.Second,
	})
	require.NoError(t, err)
	feed := NewEngineFeed(client, "/feed")

	records, err := feed.Fetch(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	fail.Store(true)
	_, err = feed.Fetch(context.Background(), nil)
	assert.ErrorIs(t, err, engineclient.ErrEngineUnavailable)
}

func TestRenderer(t *testing.T) {
	r, err := NewRenderer(nil)
	require.NoError(t, err)

	meeting := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		rec  Record
		want string
	}{
		{"opened", Record{Kind: KindMailOpened, Name: "Ana"}, "Ana opened your email"},
		{"contact fallback", Record{Kind: KindReplied, Contact: "lee@example.com"}, "lee@example.com replied to your email"},
		{"anonymous", Record{Kind: KindReplied}, "Someone replied to your email"},
		{"meeting", Record{Kind: KindMeetingScheduled, Name: "Kim", MeetingTime: &meeting}, "Kim booked a meeting for Mar 4 at 15:00 UTC"},
		{"meeting without time", Record{Kind: KindMeetingScheduled, Name: "Kim"}, "Kim booked a meeting"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Render(tt.rec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = r.Render(Record{Kind: "bounced"})
	assert.Error(t, err)
}

func TestRendererOverrides(t *testing.T) {
	r, err := NewRenderer(map[string]string{"replied": "New reply from {{ name | upcase }}"})
	require.NoError(t, err)
	got, err := r.Render(Record{Kind: KindReplied, Name: "dana"})
	require.NoError(t, err)
	assert.Equal(t, "New reply from DANA", got)

	_, err = NewRenderer(map[string]string{"bounced": "x"})
	assert.Error(t, err)
	_, err = NewRenderer(map[string]string{"replied": "{% if %}"})
	assert.Error(t, err)
}
