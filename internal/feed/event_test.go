package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventAt(typ EventType) Event {
	return New("W1", "2025-06-02", typ, "checked_in",
		time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
}

func TestEventString(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{
			name: "check in",
			ev:   eventAt(EventCheckIn),
			want: "worker W1 checked in at 09:00",
		},
		{
			name: "check out",
			ev:   eventAt(EventCheckOut),
			want: "worker W1 checked out at 09:00",
		},
		{
			name: "break start",
			ev:   eventAt(EventBreakStart),
			want: "worker W1 started a break at 09:00",
		},
		{
			name: "break end",
			ev:   eventAt(EventBreakEnd),
			want: "worker W1 ended a break at 09:00",
		},
		{
			name: "forced marks the override",
			ev: func() Event {
				e := eventAt(EventForceCheckOut)
				e.Forced = true
				return e
			}(),
			want: "worker W1 was force checked out at 09:00 (operator override)",
		},
		{
			name: "pending marks awaiting sync",
			ev: func() Event {
				e := eventAt(EventCheckIn)
				e.Pending = true
				return e
			}(),
			want: "worker W1 checked in at 09:00 (awaiting sync)",
		},
		{
			name: "note appended",
			ev: func() Event {
				e := eventAt(EventConflict)
				e.Note = "discarded local checked_in at version 2, remote at version 3"
				return e
			}(),
			want: "worker W1: pending attendance discarded, remote store is newer: " +
				"discarded local checked_in at version 2, remote at version 3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ev.String())
		})
	}
}

func TestNewAssignsUniqueIDs(t *testing.T) {
	a := eventAt(EventCheckIn)
	b := eventAt(EventCheckOut)
	require.NotEmpty(t, a.ID)
	require.NotEmpty(t, b.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestFanoutDelivers(t *testing.T) {
	f := NewFanout()
	ch := f.Subscribe(4)

	ev := eventAt(EventCheckIn)
	f.Emit(ev)

	select {
	case got := <-ch:
		assert.Equal(t, ev.ID, got.ID)
	default:
		t.Fatal("expected a delivered event")
	}
}

func TestFanoutDropsWhenSubscriberFull(t *testing.T) {
	f := NewFanout()
	ch := f.Subscribe(1)

	f.Emit(eventAt(EventCheckIn))
	// The buffer is full; this must not block.
	f.Emit(eventAt(EventBreakStart))

	got := <-ch
	assert.Equal(t, EventCheckIn, got.Type)
	select {
	case ev := <-ch:
		t.Fatalf("expected second event dropped, got %s", ev.Type)
	default:
	}
}

func TestFanoutClose(t *testing.T) {
	f := NewFanout()
	ch := f.Subscribe(1)
	f.Close()

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed")

	// Emit after close is a no-op, not a panic.
	f.Emit(eventAt(EventCheckIn))
	f.Close()
}

type countEmitter struct{ n int }

func (c *countEmitter) Emit(Event) { c.n++ }

func TestMultiForwardsToAll(t *testing.T) {
	a, b := &countEmitter{}, &countEmitter{}
	m := Multi{a, b, Discard{}}
	m.Emit(eventAt(EventCheckIn))
	m.Emit(eventAt(EventCheckOut))
	assert.Equal(t, 2, a.n)
	assert.Equal(t, 2, b.n)
}
