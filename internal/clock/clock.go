// Package clock supplies the reference instant for every time-dependent
// computation.
//
// Projections never read the wall clock themselves; callers obtain "now"
// from a Clock and pass it in explicitly. This keeps expiry, closure and
// occupancy deterministic under test.
package clock

import "time"

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock, in UTC.
type System struct{}

// Now returns time.Now in UTC.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always returns the same instant.
// Used by the CLI --now flag to evaluate the log as of a chosen moment.
type Fixed time.Time

// Now returns the fixed instant in UTC.
func (f Fixed) Now() time.Time {
	return time.Time(f).UTC()
}
