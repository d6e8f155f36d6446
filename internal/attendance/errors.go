package attendance

import (
	"errors"
	"fmt"
)

// RejectionCode categorizes invariant-violation rejections. A rejection
// leaves the record untouched and is never retried automatically.
type RejectionCode string

const (
	// RejectAlreadyCheckedIn: check-in requested while already checked
	// in or on break today.
	RejectAlreadyCheckedIn RejectionCode = "ALREADY_CHECKED_IN_TODAY"

	// RejectAlreadyCompleted: check-in requested after today's record
	// already reached checked-out.
	RejectAlreadyCompleted RejectionCode = "ALREADY_COMPLETED_TODAY"

	// RejectAlreadyCheckedOut: check-out requested twice.
	RejectAlreadyCheckedOut RejectionCode = "ALREADY_CHECKED_OUT_TODAY"

	// RejectNotCheckedIn: check-out requested before any check-in.
	RejectNotCheckedIn RejectionCode = "NOT_CHECKED_IN_YET"

	// RejectNotOnBreak: break-end requested with no open break.
	RejectNotOnBreak RejectionCode = "NOT_ON_BREAK"

	// RejectBreakRequiresCheckIn: break-start requested while not
	// actively checked in (covers not-checked-in and already-on-break).
	RejectBreakRequiresCheckIn RejectionCode = "BREAK_REQUIRES_ACTIVE_CHECK_IN"

	// RejectResetNotAllowed: day reset requested for today's record
	// before it reached checked-out.
	RejectResetNotAllowed RejectionCode = "RESET_NOT_ALLOWED"
)

// RejectionError is a typed outcome returned instead of applying a
// transition, when the request conflicts with the current record state.
type RejectionError struct {
	Code     RejectionCode
	WorkerID string
	Day      Day
	Status   Status // record status at the time of the request
}

// Error implements the error interface.
func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: worker %s on %s (status %s)", e.Code, e.WorkerID, e.Day, e.Status)
}

// IsRejection reports whether err is an invariant-violation rejection,
// returning the typed rejection when it is.
func IsRejection(err error) (*RejectionError, bool) {
	var re *RejectionError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

func newRejection(code RejectionCode, r Record) *RejectionError {
	return &RejectionError{Code: code, WorkerID: r.WorkerID, Day: r.Day, Status: r.Status}
}

// ErrNotFound is returned by stores when no record exists for the
// requested key.
var ErrNotFound = errors.New("attendance: record not found")

// ConflictError indicates the remote store's conditional write failed
// because its current version diverged from the caller's expectation.
type ConflictError struct {
	WorkerID       string
	Day            Day
	CurrentVersion int64
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: worker %s on %s, remote at version %d", e.WorkerID, e.Day, e.CurrentVersion)
}

// IsConflict reports whether err is a remote version conflict.
func IsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// UnavailableError indicates the remote store could not be reached
// (timeout, transport failure, or server fault). It triggers the
// local-cache fallback path.
type UnavailableError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("remote store unavailable during %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *UnavailableError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err marks the remote store unreachable.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}
