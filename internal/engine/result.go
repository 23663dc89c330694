package engine

import "github.com/roach88/lotledger/internal/ledger"

// Outcome is the business result of a request.
type Outcome string

const (
	// OutcomeAdmitted: a reserve event created a booking.
	OutcomeAdmitted Outcome = "admitted"
	// OutcomeWaitlisted: the reservation was recorded on the waitlist.
	OutcomeWaitlisted Outcome = "waitlisted"
	// OutcomeRejected: a failed cancel or checkin was recorded.
	OutcomeRejected Outcome = "rejected"
	// OutcomeCancelled: the requester's booking was cancelled.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeCheckedIn: the booking was checked in.
	OutcomeCheckedIn Outcome = "checked_in"
)

// Result describes what a request did.
type Result struct {
	Outcome Outcome `json:"outcome"`

	// Reason is set for waitlisted and rejected outcomes.
	Reason ledger.ErrorCode `json:"reason,omitempty"`

	BookingID string `json:"booking_id,omitempty"`
	FreeAfter int    `json:"free_after"`

	// Events are the events appended for the request, in order.
	Events []ledger.Event `json:"events"`
}

// OK reports whether the request had its intended effect.
func (r Result) OK() bool {
	switch r.Outcome {
	case OutcomeAdmitted, OutcomeCancelled, OutcomeCheckedIn:
		return true
	default:
		return false
	}
}

// LotOccupancy is one row of the occupancy view.
type LotOccupancy struct {
	LotID    string `json:"lot_id"`
	Name     string `json:"name,omitempty"`
	Capacity int    `json:"capacity"`
	Occupied int    `json:"occupied"`
	Free     int    `json:"free"`
	Active   bool   `json:"active"`
}
