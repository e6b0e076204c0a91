// Package notifications tracks which engine notifications a dashboard
// session has not yet acknowledged.
package notifications

import (
	"sort"
	"time"
)

// Kind is the type of engagement a notification reports.
type Kind string

const (
	KindMailOpened       Kind = "mail_opened"
	KindReplied          Kind = "replied"
	KindMeetingScheduled Kind = "meeting_scheduled"
)

// Valid reports whether k is a kind the dashboard knows how to show.
func (k Kind) Valid() bool {
	switch k {
	case KindMailOpened, KindReplied, KindMeetingScheduled:
		return true
	}
	return false
}

// Record is one engine notification. Records are immutable once created.
type Record struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	Name        string     `json:"name"`
	Contact     string     `json:"contact,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
	MeetingTime *time.Time `json:"meeting_time,omitempty"`
}

// SortRecords orders records by OccurredAt, oldest first.
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].OccurredAt.Before(records[j].OccurredAt)
	})
}

// UnseenCount returns how many records occurred strictly after checkpoint.
// A nil checkpoint means the session has never acknowledged, so every record
// is unseen. A record stamped exactly at the checkpoint counts as seen.
// records must be sorted by OccurredAt.
func UnseenCount(records []Record, checkpoint *time.Time) int {
	if checkpoint == nil {
		return len(records)
	}
	cp := *checkpoint
	idx := sort.Search(len(records), func(i int) bool {
		return records[i].OccurredAt.After(cp)
	})
	return len(records) - idx
}
