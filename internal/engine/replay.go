package engine

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/roach88/lotledger/internal/conflict"
	"github.com/roach88/lotledger/internal/ledger"
	"github.com/roach88/lotledger/internal/projection"
)

// ReplayReport is the result of re-deriving state from the log.
//
// Replay re-decides every recorded admission and waitlist entry against the
// part of the log that precedes it in (timestamp, event_id) order and
// compares the verdict with what was recorded: the outcome, the waitlist
// reason and, for rows that carry a capacity, free_after. A difference means
// the entry was decided on a view of the log other than the one the log now
// shows, such as two writers deciding at once. It also checks the invariants
// the engine maintains for bookings it admits:
//   - no two open bookings on one lot overlap
//   - the bookings whose slot contains at never exceed capacity
//
// Logs written by older versions may legitimately fail both checks; problems
// are reported, not repaired.
type ReplayReport struct {
	Events        int                      `json:"events"`
	Bookings      int                      `json:"bookings"`
	States        map[projection.State]int `json:"states"`
	Occupancy     []LotOccupancy           `json:"occupancy"`
	Deterministic bool                     `json:"deterministic"`
	Mismatches    []string                 `json:"mismatches,omitempty"`
	Violations    []string                 `json:"violations,omitempty"`
}

// OK reports whether the replay found neither mismatches nor violations.
func (r ReplayReport) OK() bool {
	return r.Deterministic && len(r.Violations) == 0
}

// Replay re-derives state as of at and verifies it.
func (e *Engine) Replay(ctx context.Context, at time.Time) (ReplayReport, error) {
	configured, events, err := e.snapshot(ctx)
	if err != nil {
		return ReplayReport{}, err
	}
	events = slices.Clone(events)
	ledger.SortEvents(events)

	states := projection.States(events)
	occupied := projection.Occupancy(configured, events, at)

	report := ReplayReport{
		Events:   len(events),
		Bookings: len(states),
		States:   map[projection.State]int{},
	}
	for _, s := range states {
		report.States[s]++
	}
	for _, lot := range configured {
		report.Occupancy = append(report.Occupancy, LotOccupancy{
			LotID:    lot.ID,
			Name:     lot.Name,
			Capacity: lot.Capacity,
			Occupied: occupied[lot.ID],
			Free:     projection.Free(lot, occupied[lot.ID]),
			Active:   lot.Active,
		})
	}

	report.Mismatches = redecide(configured, events)
	report.Deterministic = len(report.Mismatches) == 0
	report.Violations = violations(configured, events, at)
	return report, nil
}

// redecide replays the admission decision of every successful reserve and
// waitlist event against the sorted log prefix before it. Rows without a
// slot, or on a lot that is neither recorded nor configured, are skipped.
func redecide(configured []ledger.Lot, events []ledger.Event) []string {
	var out []string
	for i, ev := range events {
		if !ev.Is(ledger.ActionReserve) && !ev.Is(ledger.ActionWaitlist) {
			continue
		}
		if !ev.HasSlot() {
			continue
		}
		lot, ok := ledger.FindLot(configured, ev.LotID)
		if ev.Capacity > 0 {
			lot, ok = ledger.Lot{ID: ev.LotID, Capacity: ev.Capacity, Active: true}, true
		}
		if !ok {
			continue
		}

		d := conflict.Admit(events[:i], []ledger.Lot{lot}, lot.ID, *ev.SlotStart, *ev.SlotEnd)
		switch {
		case ev.Action == ledger.ActionReserve && !d.Admitted:
			out = append(out, fmt.Sprintf("event %s: booking %s was admitted, replay waitlists it (%s)",
				ev.ID, ev.BookingID, d.Reason))
		case ev.Action == ledger.ActionWaitlist && d.Admitted:
			out = append(out, fmt.Sprintf("event %s: waitlisted with %s, replay admits it", ev.ID, ev.ErrorCode))
		case ev.Action == ledger.ActionWaitlist && ev.ErrorCode != d.Reason:
			out = append(out, fmt.Sprintf("event %s: waitlisted with %s, replay gives %s", ev.ID, ev.ErrorCode, d.Reason))
		case ev.Action == ledger.ActionReserve && ev.Capacity > 0 && ev.FreeAfter != d.FreeAfter:
			out = append(out, fmt.Sprintf("event %s: booking %s recorded free_after %d, replay gives %d",
				ev.ID, ev.BookingID, ev.FreeAfter, d.FreeAfter))
		}
	}
	return out
}

// violations checks the no-double-booking and capacity invariants.
func violations(configured []ledger.Lot, events []ledger.Event, at time.Time) []string {
	var out []string

	byLot := map[string][]projection.Booking{}
	for _, b := range projection.Bookings(events) {
		if b.State.Open() {
			byLot[b.LotID] = append(byLot[b.LotID], b)
		}
	}
	for _, lotID := range slices.Sorted(maps.Keys(byLot)) {
		open := byLot[lotID]
		for i := 0; i < len(open); i++ {
			for j := i + 1; j < len(open); j++ {
				a, b := open[i], open[j]
				if a.SlotStart != nil && a.SlotEnd != nil && b.Overlaps(*a.SlotStart, *a.SlotEnd) {
					out = append(out, fmt.Sprintf("lot %s: bookings %s and %s overlap", lotID, a.ID, b.ID))
				}
			}
		}
	}

	counts := map[string]int{}
	for _, open := range byLot {
		for _, b := range open {
			if b.SlotStart != nil && b.SlotEnd != nil && !at.Before(*b.SlotStart) && at.Before(*b.SlotEnd) {
				counts[b.LotID]++
			}
		}
	}
	for _, lot := range configured {
		if counts[lot.ID] > lot.Capacity {
			out = append(out, fmt.Sprintf("lot %s: %d bookings in progress exceed capacity %d", lot.ID, counts[lot.ID], lot.Capacity))
		}
	}
	return out
}
