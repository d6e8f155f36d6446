package attendance

import (
	"fmt"
	"time"
)

// dayLayout is the canonical wire and storage format for a calendar day.
const dayLayout = "2006-01-02"

// Day is a calendar date in the worker's local day, formatted YYYY-MM-DD.
// The format sorts lexicographically in chronological order, so string
// comparison is date comparison.
type Day string

// DayOf returns the calendar day of t in the given location.
func DayOf(t time.Time, loc *time.Location) Day {
	return Day(t.In(loc).Format(dayLayout))
}

// Before reports whether d is an earlier calendar day than other.
func (d Day) Before(other Day) bool {
	return string(d) < string(other)
}

// Valid reports whether d parses as a calendar date.
func (d Day) Valid() bool {
	_, err := time.Parse(dayLayout, string(d))
	return err == nil
}

// ParseDay validates and returns a Day from its string form.
func ParseDay(s string) (Day, error) {
	if _, err := time.Parse(dayLayout, s); err != nil {
		return "", fmt.Errorf("invalid day %q: %w", s, err)
	}
	return Day(s), nil
}

// Clock supplies the current instant. All day-boundary and duration
// logic derives from it; client-supplied timestamps are never trusted.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }
