package harness

import "github.com/roach88/lotledger/internal/ledger"

// TraceStep records what one scenario step did.
type TraceStep struct {
	Seq     int    `json:"seq"`
	Op      string `json:"op"`
	At      string `json:"at"`
	Outcome string `json:"outcome,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Booking string `json:"booking,omitempty"`

	// Occupied is set by occupancy steps, in lot configuration order.
	Occupied []LotCount `json:"occupied,omitempty"`

	Events []TraceEvent `json:"events,omitempty"`
}

// LotCount is one lot's occupied count.
type LotCount struct {
	LotID    string `json:"lot_id"`
	Occupied int    `json:"occupied"`
}

// TraceEvent is the part of an appended event a trace keeps.
type TraceEvent struct {
	EventID   string `json:"event_id"`
	Action    string `json:"action"`
	Success   bool   `json:"success"`
	BookingID string `json:"booking_id,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	FreeAfter int    `json:"free_after"`
}

func traceEvents(events []ledger.Event) []TraceEvent {
	out := make([]TraceEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, TraceEvent{
			EventID:   ev.ID,
			Action:    string(ev.Action),
			Success:   ev.Success,
			BookingID: ev.BookingID,
			ErrorCode: string(ev.ErrorCode),
			FreeAfter: ev.FreeAfter,
		})
	}
	return out
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceStep `json:"trace"`
	Errors []string    `json:"errors,omitempty"`

	// Bookings maps names given with "as" to booking ids.
	Bookings map[string]string `json:"bookings,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceStep{},
		Errors:   []string{},
		Bookings: map[string]string{},
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
