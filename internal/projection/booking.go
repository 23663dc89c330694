package projection

import (
	"time"

	"github.com/roach88/lotledger/internal/ledger"
)

// State is the derived lifecycle state of a booking.
type State string

const (
	StateConfirmed State = "confirmed"
	StateCheckedIn State = "checked_in"
	StateCancelled State = "cancelled"
	StateExpired   State = "expired"
	StateNoShow    State = "no_show"
)

// Open reports whether the booking still holds its slot.
func (s State) Open() bool {
	return s == StateConfirmed || s == StateCheckedIn
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return !s.Open()
}

// Booking is one reservation as derived from the events sharing its id.
type Booking struct {
	ID          string     `json:"booking_id"`
	RequesterID string     `json:"requester_id"`
	LotID       string     `json:"lot_id"`
	Reason      string     `json:"reason,omitempty"`
	SlotStart   *time.Time `json:"slot_start,omitempty"`
	SlotEnd     *time.Time `json:"slot_end,omitempty"`
	ReservedAt  time.Time  `json:"reserved_at"`
	State       State      `json:"state"`
	CheckedInAt *time.Time `json:"checked_in_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`

	// Origin is the reserve event that created the booking.
	Origin ledger.Event `json:"-"`
}

// ActiveAt reports whether the booking counts against its lot at now:
// it is open and its slot has not ended before now.
func (b Booking) ActiveAt(now time.Time) bool {
	if !b.State.Open() {
		return false
	}
	return b.SlotEnd == nil || !b.SlotEnd.Before(now)
}

// Overlaps reports whether the booking's slot intersects [start, end).
// Bookings without a slot never overlap.
func (b Booking) Overlaps(start, end time.Time) bool {
	if b.SlotStart == nil || b.SlotEnd == nil {
		return false
	}
	return ledger.Overlaps(*b.SlotStart, *b.SlotEnd, start, end)
}

// CheckedIn reports whether a successful check-in was recorded.
func (b Booking) CheckedIn() bool {
	return b.CheckedInAt != nil
}

// Bookings folds the log into every booking it defines, in the order their
// reserve events appear.
//
// Transitions:
//   - a successful reserve with a booking id creates a Confirmed booking;
//     a repeated reserve for the same id is ignored
//   - a successful checkin moves Confirmed to CheckedIn
//   - a successful cancel moves an open booking to Cancelled
//   - an expire, no_show or day_close row closes an open booking
//
// Events referring to unknown bookings are ignored. Terminal rows count by
// presence, whatever their success flag, so that a booking closed once is
// never closed again.
func Bookings(events []ledger.Event) []Booking {
	events = sorted(events)

	index := map[string]int{}
	var out []Booking
	for _, ev := range events {
		if !ev.Is(ledger.ActionReserve) || ev.BookingID == "" {
			continue
		}
		if _, dup := index[ev.BookingID]; dup {
			continue
		}
		index[ev.BookingID] = len(out)
		out = append(out, Booking{
			ID:          ev.BookingID,
			RequesterID: ev.RequesterID,
			LotID:       ev.LotID,
			Reason:      ev.Reason,
			SlotStart:   ev.SlotStart,
			SlotEnd:     ev.SlotEnd,
			ReservedAt:  ev.Timestamp,
			State:       StateConfirmed,
			Origin:      ev,
		})
	}

	for _, ev := range events {
		i, ok := index[ev.BookingID]
		if !ok || ev.BookingID == "" {
			continue
		}
		apply(&out[i], ev)
	}
	return out
}

func apply(b *Booking, ev ledger.Event) {
	at := ev.Timestamp
	switch {
	case ev.Is(ledger.ActionCheckin):
		if b.State == StateConfirmed {
			b.State = StateCheckedIn
			b.CheckedInAt = &at
		}
	case ev.Is(ledger.ActionCancel):
		if b.State.Open() {
			b.State = StateCancelled
			b.ClosedAt = &at
		}
	case ev.Action == ledger.ActionExpire:
		closeAs(b, StateExpired, at)
	case ev.Action == ledger.ActionNoShow:
		closeAs(b, StateNoShow, at)
	case ev.Action == ledger.ActionDayClose:
		closeAs(b, TerminalFor(b.CheckedIn()), at)
	}
}

func closeAs(b *Booking, s State, at time.Time) {
	if b.State.Open() {
		b.State = s
		b.ClosedAt = &at
	}
}

// TerminalFor is the closing state of a booking that ran out: Expired when
// the requester checked in, NoShow otherwise.
func TerminalFor(checkedIn bool) State {
	if checkedIn {
		return StateExpired
	}
	return StateNoShow
}

// TerminalAction is the event action recording TerminalFor(checkedIn).
func TerminalAction(checkedIn bool) ledger.Action {
	if checkedIn {
		return ledger.ActionExpire
	}
	return ledger.ActionNoShow
}

// FindBooking returns the booking with the given id.
func FindBooking(events []ledger.Event, bookingID string) (Booking, bool) {
	for _, b := range Bookings(events) {
		if b.ID == bookingID {
			return b, true
		}
	}
	return Booking{}, false
}

// States maps every booking id to its state. Used to compare folds.
func States(events []ledger.Event) map[string]State {
	out := map[string]State{}
	for _, b := range Bookings(events) {
		out[b.ID] = b.State
	}
	return out
}

// sorted returns events in log order, copying only when they are not
// already ordered.
func sorted(events []ledger.Event) []ledger.Event {
	for i := 1; i < len(events); i++ {
		if ledger.Less(events[i], events[i-1]) {
			cp := make([]ledger.Event, len(events))
			copy(cp, events)
			ledger.SortEvents(cp)
			return cp
		}
	}
	return events
}
