package attendance

import "time"

// EventType names a requested transition.
type EventType string

const (
	CheckIn    EventType = "check_in"
	CheckOut   EventType = "check_out"
	BreakStart EventType = "break_start"
	BreakEnd   EventType = "break_end"

	// ForceCheckOut is an operator override: a check-out acknowledged by
	// an operator rather than performed by the worker. It passes the
	// same guards as CheckOut but is surfaced distinctly in the feed.
	ForceCheckOut EventType = "force_check_out"

	// ResetDay is an operator override that re-initializes the worker's
	// record for the current day. It never mutates a past day's record.
	ResetDay EventType = "reset_day"
)

// Transition applies ev to rec at instant now and returns the resulting
// record, or a *RejectionError if a per-day invariant forbids it. The
// input record is never modified.
//
// today is the calendar day resolved from the authoritative clock. For
// every event except ResetDay the caller has already applied the
// day-boundary rule, so rec.Day == today; ResetDay receives the stored
// record as-is and uses the day mismatch as one of its guards.
//
// Version increments on every accepted transition. A record carried over
// a day boundary by ResetDay restarts at version 1, since versions are
// scoped to (worker, day).
func Transition(rec Record, ev EventType, now time.Time, today Day) (Record, error) {
	out := rec

	switch ev {
	case CheckIn:
		switch rec.Status {
		case StatusNotCheckedIn:
			at := now
			out.Status = StatusCheckedIn
			out.CheckInAt = &at
		case StatusCheckedOut:
			return rec, newRejection(RejectAlreadyCompleted, rec)
		default:
			return rec, newRejection(RejectAlreadyCheckedIn, rec)
		}

	case BreakStart:
		if rec.Status != StatusCheckedIn {
			return rec, newRejection(RejectBreakRequiresCheckIn, rec)
		}
		at := now
		out.Status = StatusOnBreak
		out.BreakStartAt = &at
		out.BreakEndAt = nil

	case BreakEnd:
		if rec.Status != StatusOnBreak {
			return rec, newRejection(RejectNotOnBreak, rec)
		}
		out = closeBreak(out, now)

	case CheckOut, ForceCheckOut:
		switch rec.Status {
		case StatusNotCheckedIn:
			return rec, newRejection(RejectNotCheckedIn, rec)
		case StatusCheckedOut:
			return rec, newRejection(RejectAlreadyCheckedOut, rec)
		case StatusOnBreak:
			// Close the open break first, then check out.
			out = closeBreak(out, now)
		}
		at := now
		out.Status = StatusCheckedOut
		out.CheckOutAt = &at
		out.TotalWorked = at.Sub(*out.CheckInAt) - out.BreakTotal
		if out.TotalWorked < 0 {
			out.TotalWorked = 0
		}

	case ResetDay:
		if rec.Day == today && rec.Status != StatusCheckedOut {
			return rec, newRejection(RejectResetNotAllowed, rec)
		}
		out = NewRecord(rec.WorkerID, today)
		if rec.Day == today {
			out.Version = rec.Version + 1
		} else {
			out.Version = 1
		}
		return out, nil

	default:
		return rec, &RejectionError{Code: "UNKNOWN_EVENT", WorkerID: rec.WorkerID, Day: rec.Day, Status: rec.Status}
	}

	out.Version = rec.Version + 1
	return out, nil
}

// closeBreak folds the open break into BreakTotal.
func closeBreak(rec Record, now time.Time) Record {
	out := rec
	if rec.BreakStartAt != nil {
		d := now.Sub(*rec.BreakStartAt)
		if d > 0 {
			out.BreakTotal += d
		}
		at := now
		out.BreakEndAt = &at
		out.BreakStartAt = nil
	}
	out.Status = StatusCheckedIn
	return out
}
