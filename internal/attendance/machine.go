package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/timeclock/internal/feed"
)

// RemoteStore is the authoritative persistence layer. Apply is a
// conditional write: it succeeds only if the store's current version for
// (rec.WorkerID, rec.Day) equals expectedVersion, and returns the stored
// record. Implementations return ErrNotFound, *ConflictError and
// *UnavailableError from this package.
type RemoteStore interface {
	Read(ctx context.Context, workerID string, day Day) (Record, error)
	Apply(ctx context.Context, rec Record, expectedVersion int64) (Record, error)
}

// LocalCache is the durable on-device fallback, one entry per worker
// holding the last known record. syncedVersion is the last version the
// remote store confirmed; for a record with PendingSync it is the
// expected version a later reconciliation will present.
type LocalCache interface {
	Get(ctx context.Context, workerID string) (rec Record, syncedVersion int64, err error)
	Put(ctx context.Context, rec Record, syncedVersion int64) error
}

// Machine validates requested transitions against the current record,
// the clock and the per-day invariants, then applies them via the remote
// store, falling back to the local cache when the remote is unreachable.
//
// Transitions for a worker are serialized by a per-worker lock; across
// devices the remote store's conditional write arbitrates.
type Machine struct {
	clock   Clock
	remote  RemoteStore
	cache   LocalCache
	emitter feed.Emitter
	locks   *WorkerLocks
	logger  *slog.Logger
	loc     *time.Location
	timeout time.Duration
}

// MachineOptions configures a Machine. Remote and Cache are required;
// everything else has a sensible default.
type MachineOptions struct {
	Clock   Clock
	Remote  RemoteStore
	Cache   LocalCache
	Emitter feed.Emitter
	Locks   *WorkerLocks
	Logger  *slog.Logger

	// Location resolves the worker's local calendar day.
	Location *time.Location

	// RemoteTimeout bounds every remote store call.
	RemoteTimeout time.Duration
}

// DefaultRemoteTimeout bounds remote store calls when no timeout is
// configured. A live transition must complete promptly even when the
// remote is black-holing packets.
const DefaultRemoteTimeout = 5 * time.Second

// NewMachine creates a Machine from opts, filling defaults.
func NewMachine(opts MachineOptions) *Machine {
	m := &Machine{
		clock:   opts.Clock,
		remote:  opts.Remote,
		cache:   opts.Cache,
		emitter: opts.Emitter,
		locks:   opts.Locks,
		logger:  opts.Logger,
		loc:     opts.Location,
		timeout: opts.RemoteTimeout,
	}
	if m.clock == nil {
		m.clock = SystemClock{}
	}
	if m.emitter == nil {
		m.emitter = feed.Discard{}
	}
	if m.locks == nil {
		m.locks = NewWorkerLocks()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.loc == nil {
		m.loc = time.Local
	}
	if m.timeout <= 0 {
		m.timeout = DefaultRemoteTimeout
	}
	return m
}

// CheckIn records the start of the worker's day.
func (m *Machine) CheckIn(ctx context.Context, workerID string) (Record, error) {
	return m.apply(ctx, workerID, CheckIn)
}

// CheckOut records the end of the worker's day, closing any open break.
func (m *Machine) CheckOut(ctx context.Context, workerID string) (Record, error) {
	return m.apply(ctx, workerID, CheckOut)
}

// BreakStart opens a break for an actively checked-in worker.
func (m *Machine) BreakStart(ctx context.Context, workerID string) (Record, error) {
	return m.apply(ctx, workerID, BreakStart)
}

// BreakEnd closes the open break and folds it into the break total.
func (m *Machine) BreakEnd(ctx context.Context, workerID string) (Record, error) {
	return m.apply(ctx, workerID, BreakEnd)
}

// ForceCheckOut is the operator override for a worker stuck checked in.
// Guards match CheckOut; the feed event is marked as an override.
func (m *Machine) ForceCheckOut(ctx context.Context, workerID string) (Record, error) {
	return m.apply(ctx, workerID, ForceCheckOut)
}

// ResetDay re-initializes the worker's record for the current day.
// Valid from CheckedOut, or from any state when the stored record
// belongs to an earlier day. It never mutates a past day's record.
func (m *Machine) ResetDay(ctx context.Context, workerID string) (Record, error) {
	return m.apply(ctx, workerID, ResetDay)
}

// GetStatus returns the worker's record for today without writing. A
// stored record from an earlier day yields a fresh NotCheckedIn record,
// per the day-boundary rule.
func (m *Machine) GetStatus(ctx context.Context, workerID string) (Record, error) {
	workerID = NormalizeWorkerID(workerID)
	if workerID == "" {
		return Record{}, fmt.Errorf("empty worker id")
	}

	now := m.clock.Now()
	today := DayOf(now, m.loc)

	cur, _, _, err := m.loadCurrent(ctx, workerID, today)
	if err != nil {
		return Record{}, err
	}
	if cur.Day.Before(today) {
		return NewRecord(workerID, today), nil
	}
	return cur, nil
}

// apply runs one transition request end to end: resolve today, load the
// freshest known record, apply the day-boundary rule, run the guarded
// transition, then write remotely or fall back to the local cache.
func (m *Machine) apply(ctx context.Context, workerID string, ev EventType) (Record, error) {
	workerID = NormalizeWorkerID(workerID)
	if workerID == "" {
		return Record{}, fmt.Errorf("empty worker id")
	}

	unlock := m.locks.Lock(workerID)
	defer unlock()

	now := m.clock.Now()
	today := DayOf(now, m.loc)

	cur, expected, remoteUp, err := m.loadCurrent(ctx, workerID, today)
	if err != nil {
		return Record{}, err
	}

	// Day-boundary rule: a new day always starts clean, regardless of
	// how yesterday ended. ResetDay sees the stored record unchanged:
	// the stale day is one of its guards. Its write still targets
	// today's (nonexistent) record, so the expected version is 0, not
	// the stale day's.
	if cur.Day.Before(today) {
		if ev != ResetDay {
			cur = NewRecord(workerID, today)
		}
		expected = 0
	}

	if err := cur.Validate(); err != nil {
		return Record{}, fmt.Errorf("loaded record invalid: %w", err)
	}

	next, err := Transition(cur, ev, now, today)
	if err != nil {
		return cur, err
	}

	if remoteUp {
		applied, err := m.applyRemote(ctx, next, expected)
		switch {
		case err == nil:
			if cerr := m.cache.Put(ctx, applied, applied.Version); cerr != nil {
				m.logger.Warn("cache write failed after remote apply", "worker", workerID, "error", cerr)
			}
			m.emit(ev, applied, now)
			return applied, nil
		case !IsUnavailable(err):
			// Conditional write lost: a concurrent request got there
			// first (a double-click firing two check-ins). Re-read and
			// surface the rejection the fresh state implies.
			return m.resolveConflict(ctx, cur, today, now, ev, err)
		}
		m.logger.Warn("remote store unreachable, recording locally", "worker", workerID, "event", string(ev), "error", err)
	}

	// Fallback: durable local write tagged for later reconciliation.
	// The caller gets the record back, annotated unconfirmed, not an
	// error. syncedVersion stays at the last remote-confirmed version.
	next.PendingSync = true
	if err := m.cache.Put(ctx, next, expected); err != nil {
		return Record{}, fmt.Errorf("record transition locally: %w", err)
	}
	m.emit(ev, next, now)
	return next, nil
}

// loadCurrent returns the freshest known record for the worker along
// with the version a conditional remote write should expect, and whether
// the remote store answered. The cache wins over the remote only when it
// holds today's record at a strictly higher version (a pending local
// transition the remote has not seen).
func (m *Machine) loadCurrent(ctx context.Context, workerID string, today Day) (Record, int64, bool, error) {
	var (
		remoteRec  Record
		haveRemote bool
		remoteUp   = true
	)
	rctx, cancel := context.WithTimeout(ctx, m.timeout)
	rec, err := m.remote.Read(rctx, workerID, today)
	cancel()
	switch {
	case err == nil:
		remoteRec, haveRemote = rec, true
	case errors.Is(err, ErrNotFound):
		// Remote answered: no record today.
	default:
		remoteUp = false
		m.logger.Debug("remote read failed", "worker", workerID, "error", err)
	}

	cacheRec, synced, cerr := m.cache.Get(ctx, workerID)
	haveCache := cerr == nil
	if cerr != nil && !errors.Is(cerr, ErrNotFound) {
		if !remoteUp && !haveRemote {
			return Record{}, 0, false, fmt.Errorf("remote unreachable and cache unreadable: %w", cerr)
		}
		m.logger.Warn("cache read failed", "worker", workerID, "error", cerr)
		haveCache = false
	}

	if haveCache && cacheRec.Day == today && (!haveRemote || cacheRec.Version > remoteRec.Version) {
		expected := cacheRec.Version
		if cacheRec.PendingSync {
			expected = synced
		}
		return cacheRec, expected, remoteUp, nil
	}
	if haveRemote {
		return remoteRec, remoteRec.Version, remoteUp, nil
	}
	if haveCache {
		expected := cacheRec.Version
		if cacheRec.PendingSync {
			expected = synced
		}
		return cacheRec, expected, remoteUp, nil
	}
	return NewRecord(workerID, today), 0, remoteUp, nil
}

// applyRemote performs the bounded conditional write.
func (m *Machine) applyRemote(ctx context.Context, rec Record, expected int64) (Record, error) {
	rctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	rec.PendingSync = false
	return m.remote.Apply(rctx, rec, expected)
}

// resolveConflict handles a lost conditional write by re-reading the
// remote record and re-running the guards against it, so the loser of a
// duplicate submission receives the proper rejection (for a duplicate
// check-in, AlreadyCheckedInToday) rather than a raw conflict.
//
// cur is the record the lost write was based on. When it carried a
// pending offline transition, refreshing the cache from the remote
// discards that transition; the discard is surfaced to the feed the
// same way the reconciler surfaces it.
func (m *Machine) resolveConflict(ctx context.Context, cur Record, today Day, now time.Time, ev EventType, conflictErr error) (Record, error) {
	workerID := cur.WorkerID
	rctx, cancel := context.WithTimeout(ctx, m.timeout)
	fresh, err := m.remote.Read(rctx, workerID, today)
	cancel()
	if err != nil {
		return Record{}, conflictErr
	}
	if cerr := m.cache.Put(ctx, fresh, fresh.Version); cerr != nil {
		m.logger.Warn("cache refresh failed after conflict", "worker", workerID, "error", cerr)
	}
	if cur.PendingSync {
		m.logger.Warn("pending local transition discarded, remote store wins",
			"worker", workerID, "day", string(cur.Day),
			"local_version", cur.Version, "remote_version", fresh.Version)
		e := feed.New(workerID, string(fresh.Day), feed.EventConflict, string(fresh.Status), now)
		e.Note = fmt.Sprintf("discarded local %s at version %d, remote at version %d",
			cur.Status, cur.Version, fresh.Version)
		m.emitter.Emit(e)
	}

	next, err := Transition(fresh, ev, now, today)
	if err != nil {
		return fresh, err
	}

	// The guards still pass against the fresh state; our first read was
	// merely stale. One more conditional attempt, then give up.
	applied, err := m.applyRemote(ctx, next, fresh.Version)
	if err != nil {
		return Record{}, fmt.Errorf("transition %s for worker %s: %w", ev, workerID, err)
	}
	if cerr := m.cache.Put(ctx, applied, applied.Version); cerr != nil {
		m.logger.Warn("cache write failed after remote apply", "worker", workerID, "error", cerr)
	}
	m.emit(ev, applied, now)
	return applied, nil
}

// emit publishes the transition to the activity feed, fire and forget.
func (m *Machine) emit(ev EventType, rec Record, now time.Time) {
	e := feed.New(rec.WorkerID, string(rec.Day), feed.EventType(ev), string(rec.Status), now)
	e.Forced = ev == ForceCheckOut
	e.Pending = rec.PendingSync
	m.emitter.Emit(e)
}
