package audit

import (
	"context"
	"database/sql"

	"medguard.org/internal/obs"
)

var _ Sink = (*PGSink)(nil)

// PGSink persists audit events to PostgreSQL.
type PGSink struct {
	db      *sql.DB
	metrics *obs.Registry
}

func NewPGSink(db *sql.DB, metrics *obs.Registry) *PGSink {
	return &PGSink{db: db, metrics: metrics}
}

func (s *PGSink) Write(ctx context.Context, ev Event) error {
	userID := sql.NullString{String: ev.UserID, Valid: ev.UserID != ""}
	entityID := sql.NullString{String: ev.EntityID, Valid: ev.EntityID != ""}
	_, err := s.db.ExecContext(ctx,
		`insert into audit_events(id, user_id, action, entity_type, entity_id, occurred_at)
		 values($1,$2,$3,$4,$5,$6)`,
		ev.ID, userID, ev.Action, ev.EntityType, entityID, ev.OccurredAt,
	)
	if err != nil && s.metrics != nil {
		s.metrics.Increment("errors", obs.T("component", "database"))
	}
	return err
}
