package audit

import (
	"context"
	"time"

	"medguard.org/internal/obs"
)

// Sink durably records one audit event. Implementations may block; the
// pipeline calls them only from worker goroutines.
type Sink interface {
	Write(ctx context.Context, ev Event) error
}

// LogSink writes events as JSON lines through the shared logger. It is the
// default sink when no database is configured.
type LogSink struct{}

func (LogSink) Write(_ context.Context, ev Event) error {
	obs.LogEvent("info", "audit", map[string]any{
		"type":        "audit",
		"id":          ev.ID,
		"user_id":     ev.UserID,
		"action":      ev.Action,
		"entity_type": ev.EntityType,
		"entity_id":   ev.EntityID,
		"occurred_at": ev.OccurredAt.UTC().Format(time.RFC3339Nano),
	})
	return nil
}
