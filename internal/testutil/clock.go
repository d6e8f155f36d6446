// Package testutil provides deterministic test doubles for the
// attendance machine's collaborators.
package testutil

import (
	"sync"
	"time"
)

// FakeClock is a settable wall clock for tests.
//
// Unlike attendance.SystemClock, FakeClock only moves when told to,
// so day-boundary and duration logic can be exercised exactly.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock frozen at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

// Now returns the frozen instant.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t. t may be earlier than the current instant;
// tests own the timeline.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
