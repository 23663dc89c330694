package testutil

import (
	"sync"
	"time"
)

// ManualClock is a settable clock for deterministic tests.
//
// Unlike clock.Fixed, a ManualClock can be moved between steps so that a
// scenario can record a reservation at 08:00, check in at 09:05 and sweep at
// 10:00 against the same engine.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock reading start (converted to UTC).
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start.UTC()}
}

// Now returns the current instant.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

// Advance moves the clock forward by d and returns the new instant.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Day is the calendar day used by At.
var Day = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

// At returns the instant hh:mm on Day, in UTC. Panics on malformed input.
func At(hhmm string) time.Time {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		panic("testutil.At: " + err.Error())
	}
	return Day.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
}
