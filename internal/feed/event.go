// Package feed carries human-readable attendance activity events to the
// notification subsystem. Emission is best-effort: an emitter must never
// block or fail a live transition.
package feed

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the transition (or reconciliation outcome) an
// event describes.
type EventType string

const (
	EventCheckIn       EventType = "check_in"
	EventCheckOut      EventType = "check_out"
	EventBreakStart    EventType = "break_start"
	EventBreakEnd      EventType = "break_end"
	EventForceCheckOut EventType = "force_check_out"
	EventResetDay      EventType = "reset_day"

	// EventSynced marks a pending local transition confirmed by the
	// remote store during reconciliation.
	EventSynced EventType = "reconcile_synced"

	// EventConflict marks a pending local transition discarded because
	// the remote store held a newer version. The discarded state is
	// preserved in Note for operator review.
	EventConflict EventType = "reconcile_conflict"
)

// Event is a single activity-feed entry.
type Event struct {
	ID       string    `json:"id"`
	WorkerID string    `json:"workerId"`
	Day      string    `json:"day"`
	Type     EventType `json:"type"`
	Status   string    `json:"status"`
	At       time.Time `json:"at"`
	Forced   bool      `json:"forced,omitempty"`
	Pending  bool      `json:"pending,omitempty"`
	Note     string    `json:"note,omitempty"`
}

// New stamps an event with a time-sortable UUIDv7 ID.
//
// Panics if UUID generation fails (should never happen in practice).
func New(workerID, day string, typ EventType, status string, at time.Time) Event {
	return Event{
		ID:       uuid.Must(uuid.NewV7()).String(),
		WorkerID: workerID,
		Day:      day,
		Type:     typ,
		Status:   status,
		At:       at,
	}
}

// String renders the event as a feed line. The ID is omitted so the
// rendering is deterministic for a given transition.
func (e Event) String() string {
	clock := e.At.Format("15:04")
	var msg string
	switch e.Type {
	case EventCheckIn:
		msg = fmt.Sprintf("worker %s checked in at %s", e.WorkerID, clock)
	case EventCheckOut:
		msg = fmt.Sprintf("worker %s checked out at %s", e.WorkerID, clock)
	case EventBreakStart:
		msg = fmt.Sprintf("worker %s started a break at %s", e.WorkerID, clock)
	case EventBreakEnd:
		msg = fmt.Sprintf("worker %s ended a break at %s", e.WorkerID, clock)
	case EventForceCheckOut:
		msg = fmt.Sprintf("worker %s was force checked out at %s", e.WorkerID, clock)
	case EventResetDay:
		msg = fmt.Sprintf("worker %s had the day reset at %s", e.WorkerID, clock)
	case EventSynced:
		msg = fmt.Sprintf("worker %s: pending attendance synced", e.WorkerID)
	case EventConflict:
		msg = fmt.Sprintf("worker %s: pending attendance discarded, remote store is newer", e.WorkerID)
	default:
		msg = fmt.Sprintf("worker %s: %s", e.WorkerID, e.Type)
	}
	if e.Forced {
		msg += " (operator override)"
	}
	if e.Pending {
		msg += " (awaiting sync)"
	}
	if e.Note != "" {
		msg += ": " + e.Note
	}
	return msg
}
