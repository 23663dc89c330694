// Package conflict decides whether a reservation request can be admitted.
//
// Overlap is checked before capacity: two requests for disjoint slots share
// one capacity pool, but a request that intersects an existing booking on
// the same lot is double-booking and is waitlisted as such.
package conflict

import (
	"time"

	"github.com/roach88/lotledger/internal/ledger"
	"github.com/roach88/lotledger/internal/projection"
)

// Decision is the verdict on one request.
type Decision struct {
	Admitted bool
	// Reason is OVERLAP or NO_CAPACITY when not admitted.
	Reason   ledger.ErrorCode
	Capacity int
	// Free is the free count of the lot at the requested start, before
	// admission.
	Free int
	// FreeAfter is Free-1 when admitted, Free otherwise.
	FreeAfter int
}

// CheckOverlap reports whether an open booking on lotID intersects
// [start, end). Cancelled and closed bookings never conflict; adjacency
// (one slot ending exactly when the other starts) is not an overlap.
func CheckOverlap(events []ledger.Event, lotID string, start, end time.Time) bool {
	for _, b := range projection.Bookings(events) {
		if b.LotID == lotID && b.State.Open() && b.Overlaps(start, end) {
			return true
		}
	}
	return false
}

// Admit decides a request for [start, end) on lotID. A lot missing from
// lots has no capacity.
func Admit(events []ledger.Event, lots []ledger.Lot, lotID string, start, end time.Time) Decision {
	lot, _ := ledger.FindLot(lots, lotID)
	occupied := projection.Occupancy([]ledger.Lot{lot}, events, start)[lot.ID]
	free := projection.Free(lot, occupied)

	d := Decision{Capacity: lot.Capacity, Free: free, FreeAfter: free}
	switch {
	case CheckOverlap(events, lotID, start, end):
		d.Reason = ledger.CodeOverlap
	case free <= 0:
		d.Reason = ledger.CodeNoCapacity
	default:
		d.Admitted = true
		d.FreeAfter = free - 1
	}
	return d
}
