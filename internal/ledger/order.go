package ledger

import (
	"sort"
	"time"
)

// Less reports whether a precedes b in log order: by Timestamp, then by ID.
func Less(a, b Event) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ID < b.ID
}

// SortEvents orders events in place by (Timestamp, ID).
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return Less(events[i], events[j])
	})
}

// Overlaps applies the half-open interval rule: [aStart, aEnd) and
// [bStart, bEnd) overlap iff aStart < bEnd and bStart < aEnd.
// Touching intervals (aEnd == bStart) do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
