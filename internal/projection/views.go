package projection

import (
	"sort"
	"strings"
	"time"

	"github.com/roach88/lotledger/internal/ledger"
)

// ActiveBookings returns the bookings that count against their lot at now.
func ActiveBookings(events []ledger.Event, now time.Time) []Booking {
	var out []Booking
	for _, b := range Bookings(events) {
		if b.ActiveAt(now) {
			out = append(out, b)
		}
	}
	return out
}

// Occupancy counts the active bookings of every configured lot at now,
// clamped to [0, capacity]. Bookings on lots absent from lots are ignored.
func Occupancy(lots []ledger.Lot, events []ledger.Event, now time.Time) map[string]int {
	counts := map[string]int{}
	for _, b := range ActiveBookings(events, now) {
		counts[b.LotID]++
	}

	out := make(map[string]int, len(lots))
	for _, lot := range lots {
		out[lot.ID] = min(max(counts[lot.ID], 0), max(lot.Capacity, 0))
	}
	return out
}

// Free is the number of spaces left on lot given occupied.
func Free(lot ledger.Lot, occupied int) int {
	return max(lot.Capacity-occupied, 0)
}

// HasCheckin reports whether a successful checkin was recorded for bookingID.
func HasCheckin(events []ledger.Event, bookingID string) bool {
	for _, ev := range events {
		if ev.BookingID == bookingID && ev.Is(ledger.ActionCheckin) {
			return true
		}
	}
	return false
}

// LastActiveBooking resolves "my reservation on this lot": among the open
// bookings of requesterID on lotID it returns the one with the latest slot
// start. Ties go to the later reservation.
func LastActiveBooking(events []ledger.Event, requesterID, lotID string) (string, bool) {
	var (
		best  Booking
		found bool
	)
	for _, b := range Bookings(events) {
		if !b.State.Open() || b.LotID != lotID || !SameRequester(b.RequesterID, requesterID) {
			continue
		}
		if !found || later(b, best) {
			best, found = b, true
		}
	}
	return best.ID, found
}

func later(a, b Booking) bool {
	as, bs := startOf(a), startOf(b)
	if !as.Equal(bs) {
		return as.After(bs)
	}
	if !a.ReservedAt.Equal(b.ReservedAt) {
		return a.ReservedAt.After(b.ReservedAt)
	}
	return a.ID > b.ID
}

func startOf(b Booking) time.Time {
	if b.SlotStart == nil {
		return time.Time{}
	}
	return *b.SlotStart
}

// SameRequester compares requester identities. Identities are e-mail
// addresses in practice, so case is not significant.
func SameRequester(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// TerminalIDs returns the booking ids that already have an expire, no_show
// or day_close row.
func TerminalIDs(events []ledger.Event) map[string]struct{} {
	out := map[string]struct{}{}
	for _, ev := range events {
		if ev.BookingID != "" && ev.Action.Terminal() {
			out[ev.BookingID] = struct{}{}
		}
	}
	return out
}

// RequesterBookings returns the active bookings of requesterID at now,
// ordered by slot start.
func RequesterBookings(events []ledger.Event, requesterID string, now time.Time) []Booking {
	var out []Booking
	for _, b := range ActiveBookings(events, now) {
		if SameRequester(b.RequesterID, requesterID) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return startOf(out[i]).Before(startOf(out[j]))
	})
	return out
}

// WaitlistEntry is a reserve attempt that was not admitted.
type WaitlistEntry struct {
	EventID     string           `json:"event_id"`
	At          time.Time        `json:"at"`
	RequesterID string           `json:"requester_id"`
	LotID       string           `json:"lot_id"`
	Reason      string           `json:"reason,omitempty"`
	Code        ledger.ErrorCode `json:"error_code"`
	SlotStart   *time.Time       `json:"slot_start,omitempty"`
	SlotEnd     *time.Time       `json:"slot_end,omitempty"`
}

// Waitlist returns every recorded waitlist entry in log order.
func Waitlist(events []ledger.Event) []WaitlistEntry {
	var out []WaitlistEntry
	for _, ev := range sorted(events) {
		if !ev.Is(ledger.ActionWaitlist) {
			continue
		}
		out = append(out, WaitlistEntry{
			EventID:     ev.ID,
			At:          ev.Timestamp,
			RequesterID: ev.RequesterID,
			LotID:       ev.LotID,
			Reason:      ev.Reason,
			Code:        ev.ErrorCode,
			SlotStart:   ev.SlotStart,
			SlotEnd:     ev.SlotEnd,
		})
	}
	return out
}
