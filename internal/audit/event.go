package audit

import "time"

// Event is one immutable audit record. Ownership passes to the pipeline on
// enqueue; the pipeline is responsible for eventual persistence.
type Event struct {
	ID         string
	UserID     string // empty for system actions
	Action     string
	EntityType string
	EntityID   string // empty when the action has no single target
	OccurredAt time.Time
}
