package attendance

import "sync"

// WorkerLocks serializes transitions per worker on this device. The
// remote store's conditional write is the real arbiter across devices;
// this table only prevents two local fallback writes from interleaving.
//
// Locks are created on first use and never released; the population of
// workers on a single device is small.
type WorkerLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewWorkerLocks creates an empty lock table.
func NewWorkerLocks() *WorkerLocks {
	return &WorkerLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the lock for workerID, creating it if needed.
// Callers must call the returned function to release.
func (w *WorkerLocks) Lock(workerID string) (unlock func()) {
	w.mu.Lock()
	l, ok := w.locks[workerID]
	if !ok {
		l = &sync.Mutex{}
		w.locks[workerID] = l
	}
	w.mu.Unlock()

	l.Lock()
	return l.Unlock
}
