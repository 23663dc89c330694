package testutil

import (
	"time"

	"github.com/roach88/lotledger/internal/ids"
	"github.com/roach88/lotledger/internal/ledger"
)

// LogBuilder assembles event logs for projection and lifecycle tests.
//
// Event ids come from a Sequence ("e-0001", ...) so logs built the same way
// are identical. Terminal and check-in events copy requester, lot and slot
// from the booking's reserve event when one was added earlier.
type LogBuilder struct {
	ids    *ids.Sequence
	events []ledger.Event
}

// NewLog creates an empty LogBuilder.
func NewLog() *LogBuilder {
	return &LogBuilder{ids: ids.NewSequence("e")}
}

// Reserve adds a successful reserve event for booking on lot.
func (b *LogBuilder) Reserve(at time.Time, requester, lot, booking string, start, end time.Time) *LogBuilder {
	return b.Add(ledger.Event{
		Timestamp:   at,
		RequesterID: requester,
		Action:      ledger.ActionReserve,
		Reason:      "clase",
		LotID:       lot,
		BookingID:   booking,
		Success:     true,
		SlotStart:   ledger.TimePtr(start),
		SlotEnd:     ledger.TimePtr(end),
	})
}

// Cancel adds a successful cancel event for booking.
func (b *LogBuilder) Cancel(at time.Time, booking string) *LogBuilder {
	return b.follow(at, ledger.ActionCancel, booking)
}

// Checkin adds a successful checkin event for booking.
func (b *LogBuilder) Checkin(at time.Time, booking string) *LogBuilder {
	return b.follow(at, ledger.ActionCheckin, booking)
}

// Close adds a terminal event (expire, no_show or day_close) for booking.
func (b *LogBuilder) Close(at time.Time, action ledger.Action, booking string) *LogBuilder {
	return b.follow(at, action, booking)
}

// Waitlist adds a waitlist entry for an attempt on lot.
func (b *LogBuilder) Waitlist(at time.Time, requester, lot string, code ledger.ErrorCode, start, end time.Time) *LogBuilder {
	return b.Add(ledger.Event{
		Timestamp:   at,
		RequesterID: requester,
		Action:      ledger.ActionWaitlist,
		LotID:       lot,
		Success:     true,
		ErrorCode:   code,
		SlotStart:   ledger.TimePtr(start),
		SlotEnd:     ledger.TimePtr(end),
	})
}

// Add appends ev, assigning an id when ev has none.
func (b *LogBuilder) Add(ev ledger.Event) *LogBuilder {
	if ev.ID == "" {
		ev.ID = b.ids.New()
	}
	ev.Timestamp = ev.Timestamp.UTC()
	b.events = append(b.events, ev)
	return b
}

// Events returns a copy of the events added so far, in insertion order.
func (b *LogBuilder) Events() []ledger.Event {
	out := make([]ledger.Event, len(b.events))
	copy(out, b.events)
	return out
}

func (b *LogBuilder) follow(at time.Time, action ledger.Action, booking string) *LogBuilder {
	ev := ledger.Event{
		Timestamp: at,
		Action:    action,
		BookingID: booking,
		Success:   true,
	}
	for _, prev := range b.events {
		if prev.BookingID == booking && prev.Is(ledger.ActionReserve) {
			ev.RequesterID = prev.RequesterID
			ev.LotID = prev.LotID
			ev.SlotStart = prev.SlotStart
			ev.SlotEnd = prev.SlotEnd
			break
		}
	}
	return b.Add(ev)
}
