// Package attendance implements the daily attendance state machine:
// check-in, check-out and break transitions for a worker, with at most
// one check-in and one check-out per calendar day.
//
// The package owns the record model, the closed transition table, and
// the Machine orchestrator that applies transitions against the remote
// store with a durable local-cache fallback.
package attendance

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Status is the worker's position in the daily state machine.
type Status string

const (
	StatusNotCheckedIn Status = "not_checked_in"
	StatusCheckedIn    Status = "checked_in"
	StatusOnBreak      Status = "on_break"
	StatusCheckedOut   Status = "checked_out"
)

// Valid reports whether s is one of the four known states.
func (s Status) Valid() bool {
	switch s {
	case StatusNotCheckedIn, StatusCheckedIn, StatusOnBreak, StatusCheckedOut:
		return true
	}
	return false
}

// Record is one worker's attendance for one calendar day, identified by
// (WorkerID, Day). It is created lazily on the first transition request
// of the day and mutated only through Transition.
type Record struct {
	WorkerID string `json:"workerId"`
	Day      Day    `json:"day"`
	Status   Status `json:"status"`

	CheckInAt    *time.Time `json:"checkInAt,omitempty"`
	CheckOutAt   *time.Time `json:"checkOutAt,omitempty"`
	BreakStartAt *time.Time `json:"breakStartAt,omitempty"`
	BreakEndAt   *time.Time `json:"breakEndAt,omitempty"`

	// BreakTotal accumulates closed breaks across the day. TotalWorked
	// is materialized at check-out; zero before.
	BreakTotal  time.Duration `json:"breakTotal"`
	TotalWorked time.Duration `json:"totalWorked"`

	// PendingSync is true when the latest transition is durable only in
	// the local cache, not yet confirmed by the remote store.
	PendingSync bool `json:"pendingSync"`

	// Version increments on every accepted transition. The remote
	// store's conditional write keys on it.
	Version int64 `json:"version"`
}

// NewRecord returns a fresh NotCheckedIn record for the given day.
func NewRecord(workerID string, day Day) Record {
	return Record{
		WorkerID: workerID,
		Day:      day,
		Status:   StatusNotCheckedIn,
	}
}

// Validate checks the at-rest invariants of a record. Records read from
// collaborators are validated before a transition is applied to them.
func (r Record) Validate() error {
	if r.WorkerID == "" {
		return fmt.Errorf("record: empty worker id")
	}
	if !r.Day.Valid() {
		return fmt.Errorf("record %s: invalid day %q", r.WorkerID, r.Day)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("record %s/%s: unknown status %q", r.WorkerID, r.Day, r.Status)
	}

	checkedIn := r.Status == StatusCheckedIn || r.Status == StatusOnBreak || r.Status == StatusCheckedOut
	if checkedIn != (r.CheckInAt != nil) {
		return fmt.Errorf("record %s/%s: check-in time inconsistent with status %s", r.WorkerID, r.Day, r.Status)
	}
	if (r.Status == StatusCheckedOut) != (r.CheckOutAt != nil) {
		return fmt.Errorf("record %s/%s: check-out time inconsistent with status %s", r.WorkerID, r.Day, r.Status)
	}
	if r.BreakStartAt != nil && r.BreakEndAt == nil && r.Status != StatusOnBreak {
		return fmt.Errorf("record %s/%s: open break while status %s", r.WorkerID, r.Day, r.Status)
	}
	if r.BreakTotal < 0 || r.TotalWorked < 0 {
		return fmt.Errorf("record %s/%s: negative duration", r.WorkerID, r.Day)
	}
	return nil
}

// NormalizeWorkerID canonicalizes an externally assigned worker
// identifier before it is used as a cache or store key. IDs arrive from
// badge readers and upstream HR systems with inconsistent Unicode forms;
// NFC normalization keeps "José" keyed identically everywhere.
func NormalizeWorkerID(id string) string {
	return norm.NFC.String(strings.TrimSpace(id))
}
