// Package reconcile merges fallback-recorded transitions back into the
// authoritative store after an outage. The remote store wins conflicts
// outright: replaying a stale transition against a newer remote state
// would violate the one-check-in/one-check-out-per-day invariant, so the
// pending local transition is discarded and surfaced as an event.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/timeclock/internal/attendance"
	"github.com/roach88/timeclock/internal/feed"
)

// Cache is the slice of the local cache the reconciler needs.
type Cache interface {
	Get(ctx context.Context, workerID string) (attendance.Record, int64, error)
	Put(ctx context.Context, rec attendance.Record, syncedVersion int64) error
	MarkSynced(ctx context.Context, workerID string, version int64) error
	PendingWorkers(ctx context.Context) ([]string, error)
}

// healthChecker is implemented by remote clients that can cheaply probe
// the store. When available, a failed probe skips the whole pass.
type healthChecker interface {
	Healthy(ctx context.Context) bool
}

// Result summarizes one reconciliation pass.
type Result struct {
	Synced    int // pending records confirmed by the remote store
	Conflicts int // pending records discarded, remote was newer
	Skipped   bool // remote still unreachable, nothing attempted
}

// Reconciler pushes pending local records to the remote store.
type Reconciler struct {
	cache   Cache
	remote  attendance.RemoteStore
	emitter feed.Emitter
	locks   *attendance.WorkerLocks
	clock   attendance.Clock
	logger  *slog.Logger
}

// Options configures a Reconciler. Cache and Remote are required. Locks
// must be the same table the live Machine uses, so a reconciliation
// never interleaves with a live transition for the same worker.
type Options struct {
	Cache   Cache
	Remote  attendance.RemoteStore
	Emitter feed.Emitter
	Locks   *attendance.WorkerLocks
	Clock   attendance.Clock
	Logger  *slog.Logger
}

// New creates a Reconciler from opts, filling defaults.
func New(opts Options) *Reconciler {
	r := &Reconciler{
		cache:   opts.Cache,
		remote:  opts.Remote,
		emitter: opts.Emitter,
		locks:   opts.Locks,
		clock:   opts.Clock,
		logger:  opts.Logger,
	}
	if r.emitter == nil {
		r.emitter = feed.Discard{}
	}
	if r.locks == nil {
		r.locks = attendance.NewWorkerLocks()
	}
	if r.clock == nil {
		r.clock = attendance.SystemClock{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Reconcile runs one pass over all pending workers. It stops early when
// the remote store is still unreachable; remaining workers are retried
// on the next pass.
func (r *Reconciler) Reconcile(ctx context.Context) (Result, error) {
	var res Result

	if hc, ok := r.remote.(healthChecker); ok && !hc.Healthy(ctx) {
		r.logger.Debug("remote store still down, skipping reconciliation")
		res.Skipped = true
		return res, nil
	}

	workers, err := r.cache.PendingWorkers(ctx)
	if err != nil {
		return res, fmt.Errorf("list pending workers: %w", err)
	}

	for _, workerID := range workers {
		outcome, err := r.reconcileWorker(ctx, workerID)
		if err != nil {
			if attendance.IsUnavailable(err) {
				r.logger.Info("remote store went away mid-pass, will retry", "worker", workerID)
				res.Skipped = true
				return res, nil
			}
			return res, fmt.Errorf("reconcile worker %s: %w", workerID, err)
		}
		switch outcome {
		case outcomeSynced:
			res.Synced++
		case outcomeConflict:
			res.Conflicts++
		}
	}
	return res, nil
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeSynced
	outcomeConflict
)

// reconcileWorker pushes one worker's pending record under their lock.
func (r *Reconciler) reconcileWorker(ctx context.Context, workerID string) (outcome, error) {
	unlock := r.locks.Lock(workerID)
	defer unlock()

	rec, synced, err := r.cache.Get(ctx, workerID)
	if errors.Is(err, attendance.ErrNotFound) {
		return outcomeNone, nil
	}
	if err != nil {
		return outcomeNone, err
	}
	if !rec.PendingSync {
		// A live transition already pushed this record while we were
		// queued on the lock.
		return outcomeNone, nil
	}

	applied, err := r.remote.Apply(ctx, rec, synced)
	if err == nil {
		if err := r.cache.MarkSynced(ctx, workerID, applied.Version); err != nil {
			return outcomeNone, err
		}
		r.logger.Info("pending attendance synced", "worker", workerID, "day", string(rec.Day), "version", applied.Version)
		r.emitEvent(feed.EventSynced, applied, "")
		return outcomeSynced, nil
	}

	ce, isConflict := attendance.IsConflict(err)
	if !isConflict {
		return outcomeNone, err
	}

	// Remote wins outright. Overwrite the cache with the remote state
	// and surface the discarded transition for operator review.
	note := fmt.Sprintf("discarded local %s at version %d, remote at version %d",
		rec.Status, rec.Version, ce.CurrentVersion)
	current, err := r.remote.Read(ctx, workerID, rec.Day)
	switch {
	case errors.Is(err, attendance.ErrNotFound):
		// The remote rejected our base version yet has no record for
		// the day. Reset the cache entry so the next transition starts
		// clean against the remote's view.
		current = attendance.NewRecord(workerID, rec.Day)
	case err != nil:
		return outcomeNone, err
	}
	if err := r.cache.Put(ctx, current, current.Version); err != nil {
		return outcomeNone, err
	}
	r.logger.Warn("reconciliation conflict, remote store wins",
		"worker", workerID, "day", string(rec.Day),
		"local_version", rec.Version, "remote_version", ce.CurrentVersion)
	r.emitEvent(feed.EventConflict, current, note)
	return outcomeConflict, nil
}

func (r *Reconciler) emitEvent(typ feed.EventType, rec attendance.Record, note string) {
	e := feed.New(rec.WorkerID, string(rec.Day), typ, string(rec.Status), r.clock.Now())
	e.Note = note
	r.emitter.Emit(e)
}

// Run reconciles on a fixed interval until ctx is cancelled. A pass
// happens immediately on start, then every interval. Errors are logged,
// never fatal: an outage degrades to offline-cache mode.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if res, err := r.Reconcile(ctx); err != nil {
			r.logger.Error("reconciliation pass failed", "error", err)
		} else if res.Synced > 0 || res.Conflicts > 0 {
			r.logger.Info("reconciliation pass complete", "synced", res.Synced, "conflicts", res.Conflicts)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
