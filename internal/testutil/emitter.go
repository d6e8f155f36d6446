package testutil

import (
	"sync"

	"github.com/roach88/timeclock/internal/feed"
)

// CollectEmitter records every emitted event for later assertions.
//
// Thread-safety: safe for concurrent use.
type CollectEmitter struct {
	mu     sync.Mutex
	events []feed.Event
}

// NewCollectEmitter creates an empty collector.
func NewCollectEmitter() *CollectEmitter {
	return &CollectEmitter{}
}

// Emit implements feed.Emitter.
func (c *CollectEmitter) Emit(ev feed.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

// Events returns a copy of everything emitted so far, in order.
func (c *CollectEmitter) Events() []feed.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]feed.Event, len(c.events))
	copy(out, c.events)
	return out
}

// Reset clears the collected events.
func (c *CollectEmitter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}
