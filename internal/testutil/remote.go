package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/timeclock/internal/attendance"
)

// FakeRemote is an in-memory attendance.RemoteStore with the same
// conditional-write semantics as the real server, plus a fault switch
// to simulate an outage.
//
// Thread-safety: safe for concurrent use; the mutex makes the
// version check and write atomic, like the server's transaction.
type FakeRemote struct {
	mu      sync.Mutex
	records map[string]attendance.Record // keyed workerID + "/" + day
	down    bool

	// Call counters for asserting traffic.
	Reads   int
	Applies int
}

// NewFakeRemote creates an empty, healthy fake store.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{records: make(map[string]attendance.Record)}
}

// SetDown switches the simulated outage on or off.
func (f *FakeRemote) SetDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

// Healthy implements the reconciler's probe.
func (f *FakeRemote) Healthy(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.down
}

// Read implements attendance.RemoteStore.
func (f *FakeRemote) Read(_ context.Context, workerID string, day attendance.Day) (attendance.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++
	if f.down {
		return attendance.Record{}, &attendance.UnavailableError{Op: "read", Err: errDown}
	}
	rec, ok := f.records[key(workerID, day)]
	if !ok {
		return attendance.Record{}, attendance.ErrNotFound
	}
	return rec, nil
}

// Apply implements attendance.RemoteStore with conditional-write
// semantics: the write succeeds only if the stored version (zero when
// absent) equals expectedVersion.
func (f *FakeRemote) Apply(_ context.Context, rec attendance.Record, expectedVersion int64) (attendance.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Applies++
	if f.down {
		return attendance.Record{}, &attendance.UnavailableError{Op: "apply", Err: errDown}
	}

	var current int64
	if existing, ok := f.records[key(rec.WorkerID, rec.Day)]; ok {
		current = existing.Version
	}
	if current != expectedVersion {
		return attendance.Record{}, &attendance.ConflictError{
			WorkerID:       rec.WorkerID,
			Day:            rec.Day,
			CurrentVersion: current,
		}
	}

	if rec.Version <= expectedVersion {
		rec.Version = expectedVersion + 1
	}
	rec.PendingSync = false
	f.records[key(rec.WorkerID, rec.Day)] = rec
	return rec, nil
}

// Seed places a record directly into the store, bypassing the
// conditional write. For arranging test fixtures.
func (f *FakeRemote) Seed(rec attendance.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[key(rec.WorkerID, rec.Day)] = rec
}

func key(workerID string, day attendance.Day) string {
	return workerID + "/" + string(day)
}

var errDown = fmt.Errorf("simulated outage")
