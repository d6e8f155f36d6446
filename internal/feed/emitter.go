package feed

import (
	"log/slog"
	"sync"
)

// Emitter receives activity events. Implementations must return quickly
// and must not fail the caller; dropping an event is acceptable, blocking
// a transition is not.
type Emitter interface {
	Emit(Event)
}

// LogEmitter writes events to a structured logger.
type LogEmitter struct {
	Logger *slog.Logger
}

// NewLogEmitter creates an emitter backed by the given logger.
// A nil logger falls back to slog.Default().
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{Logger: logger}
}

// Emit logs the event at info level with structured fields.
func (l *LogEmitter) Emit(ev Event) {
	l.Logger.Info("activity",
		"event", string(ev.Type),
		"worker", ev.WorkerID,
		"day", ev.Day,
		"status", ev.Status,
		"pending", ev.Pending,
		"message", ev.String(),
	)
}

// Fanout distributes events to subscriber channels without blocking.
// A subscriber whose buffer is full misses the event.
type Fanout struct {
	mu     sync.Mutex
	subs   []chan Event
	closed bool
}

// NewFanout creates an empty fanout.
func NewFanout() *Fanout {
	return &Fanout{}
}

// Subscribe registers a new subscriber with the given buffer size and
// returns its receive channel. The channel is closed by Close.
func (f *Fanout) Subscribe(buffer int) <-chan Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan Event, buffer)
	f.subs = append(f.subs, ch)
	return ch
}

// Emit delivers the event to every subscriber that has buffer space.
// Never blocks.
func (f *Fanout) Emit(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is behind; drop rather than stall a transition.
		}
	}
}

// Close closes all subscriber channels. Emit becomes a no-op.
func (f *Fanout) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, ch := range f.subs {
		close(ch)
	}
}

// Multi forwards each event to every wrapped emitter in order.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(ev Event) {
	for _, e := range m {
		e.Emit(ev)
	}
}

// Discard is an Emitter that drops everything. Useful in tests.
type Discard struct{}

// Emit implements Emitter.
func (Discard) Emit(Event) {}
