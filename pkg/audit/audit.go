package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EventType classifies audit events so downstream consumers can filter
// without parsing the message.
type EventType string

const (
	EventAuthorization EventType = "authorization"
	EventSettlement    EventType = "settlement"
	EventRateLimit     EventType = "rate_limit"
	EventSecurity      EventType = "security"
	EventNodeLifecycle EventType = "node_lifecycle"
)

// Event is a single audit record. Fields carries event-specific context
// such as job and node identifiers.
type Event struct {
	Type      EventType      `json:"Type"`
	Actor     string         `json:"Actor"`
	Action    string         `json:"Action"`
	Outcome   string         `json:"Outcome"`
	Fields    map[string]any `json:"Fields,omitempty"`
	Timestamp time.Time      `json:"Timestamp"`
}

// Sink receives audit events. Implementations must be safe for concurrent
// use.
type Sink interface {
	Record(ctx context.Context, event Event)
}

// ZerologSink writes audit events as structured log lines tagged with an
// audit marker, keeping the trail in the same stream operators already
// collect.
type ZerologSink struct {
	level zerolog.Level
}

func NewZerologSink() *ZerologSink {
	return &ZerologSink{level: zerolog.InfoLevel}
}

func (s *ZerologSink) Record(ctx context.Context, event Event) {
	entry := log.Ctx(ctx).WithLevel(s.level).
		Str("audit", string(event.Type)).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("outcome", event.Outcome)
	for key, value := range event.Fields {
		entry = entry.Interface(key, value)
	}
	entry.Msg("audit event")
}

// NoopSink discards events, for tests and embedded use.
type NoopSink struct{}

func (NoopSink) Record(context.Context, Event) {}
