package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ignite/outreach-relay/internal/engineclient"
	"github.com/ignite/outreach-relay/internal/pkg/logger"
)

// Feed returns the current notification list. header carries the caller's
// credentials through to the engine.
type Feed interface {
	Fetch(ctx context.Context, header http.Header) ([]Record, error)
}

// EngineFeed reads notifications from the engine's pull endpoint. The call is
// a GET, so the client's retries are safe.
type EngineFeed struct {
	client *engineclient.Client
	path   string
}

// NewEngineFeed creates a feed reading path through client.
func NewEngineFeed(client *engineclient.Client, path string) *EngineFeed {
	if path == "" {
		path = "/api/notifications"
	}
	return &EngineFeed{client: client, path: path}
}

func (f *EngineFeed) Fetch(ctx context.Context, header http.Header) ([]Record, error) {
	resp, err := f.client.Call(ctx, engineclient.Request{
		Method: http.MethodGet,
		Path:   f.path,
		Header: header,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch notifications: %w", err)
	}

	records, err := decodeRecords(resp.Body)
	if err != nil {
		return nil, err
	}

	out := records[:0]
	for _, rec := range records {
		if !rec.Kind.Valid() {
			logger.Debug("skipping notification of unknown kind", "id", rec.ID, "kind", rec.Kind)
			continue
		}
		out = append(out, rec)
	}
	SortRecords(out)
	return out, nil
}

// decodeRecords accepts either a bare array or {"notifications": [...]}.
func decodeRecords(body []byte) ([]Record, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var records []Record
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, fmt.Errorf("decode notifications: %w", err)
		}
		return records, nil
	}
	var wrapped struct {
		Notifications []Record `json:"notifications"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}
	return wrapped.Notifications, nil
}

// StaticFeed serves a fixed list.
type StaticFeed []Record

func (s StaticFeed) Fetch(context.Context, http.Header) ([]Record, error) {
	out := append([]Record(nil), s...)
	SortRecords(out)
	return out, nil
}
