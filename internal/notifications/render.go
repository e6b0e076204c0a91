package notifications

import (
	"fmt"
	"strings"
	"time"

	"github.com/osteele/liquid"
)

// DefaultTemplates are the display messages per kind.
var DefaultTemplates = map[Kind]string{
	KindMailOpened:       `{{ name | default: contact | default: "Someone" }} opened your email`,
	KindReplied:          `{{ name | default: contact | default: "Someone" }} replied to your email`,
	KindMeetingScheduled: `{{ name | default: contact | default: "Someone" }} booked a meeting{% if meeting_time %} for {{ meeting_time }}{% endif %}`,
}

// Message is a rendered notification ready for the dashboard.
type Message struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Text       string    `json:"text"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Renderer turns records into display text with Liquid templates.
type Renderer struct {
	templates map[Kind]*liquid.Template
}

// NewRenderer compiles DefaultTemplates with overrides applied on top.
// Override keys are kind names.
func NewRenderer(overrides map[string]string) (*Renderer, error) {
	engine := liquid.NewEngine()

	sources := make(map[Kind]string, len(DefaultTemplates))
	for k, v := range DefaultTemplates {
		sources[k] = v
	}
	for k, v := range overrides {
		kind := Kind(strings.TrimSpace(k))
		if !kind.Valid() {
			return nil, fmt.Errorf("template for unknown notification kind %q", k)
		}
		sources[kind] = v
	}

	r := &Renderer{templates: make(map[Kind]*liquid.Template, len(sources))}
	for kind, src := range sources {
		tpl, err := engine.ParseString(src)
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", kind, err)
		}
		r.templates[kind] = tpl
	}
	return r, nil
}

// Render produces the display text for one record.
func (r *Renderer) Render(rec Record) (string, error) {
	tpl, ok := r.templates[rec.Kind]
	if !ok {
		return "", fmt.Errorf("no template for notification kind %q", rec.Kind)
	}
	bindings := liquid.Bindings{
		"id":      rec.ID,
		"kind":    string(rec.Kind),
		"name":    rec.Name,
		"contact": rec.Contact,
	}
	if rec.MeetingTime != nil {
		bindings["meeting_time"] = rec.MeetingTime.Format("Jan 2 at 15:04 MST")
	}
	out, err := tpl.RenderString(bindings)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", rec.ID, err)
	}
	return strings.TrimSpace(out), nil
}

// Messages renders every record, newest first. A record that fails to render
// falls back to its kind name.
func (r *Renderer) Messages(records []Record) []Message {
	out := make([]Message, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		text, err := r.Render(rec)
		if err != nil {
			text = strings.ReplaceAll(string(rec.Kind), "_", " ")
		}
		out = append(out, Message{ID: rec.ID, Kind: rec.Kind, Text: text, OccurredAt: rec.OccurredAt})
	}
	return out
}
