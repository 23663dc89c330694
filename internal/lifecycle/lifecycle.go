// Package lifecycle closes bookings that ran out.
//
// A booking is never changed in place: closing it means appending an expire
// or no_show event. Which of the two depends only on whether a successful
// checkin was recorded. Both operations work on a snapshot passed in by the
// caller and skip bookings that already have a terminal row, so repeating a
// call with the same snapshot and instant appends nothing new.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/lotledger/internal/ids"
	"github.com/roach88/lotledger/internal/ledger"
	"github.com/roach88/lotledger/internal/projection"
	"github.com/roach88/lotledger/internal/store"
)

// Manager appends terminal events.
type Manager struct {
	store      store.EventStore
	ids        ids.Generator
	logger     *slog.Logger
	appVersion string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithAppVersion sets the app_version recorded on appended events.
func WithAppVersion(v string) Option {
	return func(m *Manager) {
		m.appVersion = v
	}
}

// NewManager creates a Manager appending to st with event ids from gen.
func NewManager(st store.EventStore, gen ids.Generator, opts ...Option) *Manager {
	m := &Manager{store: st, ids: gen, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SweepExpired closes every open booking whose slot ended before now and
// returns the events it appended. The events copy requester, lot, reason
// and slot from the booking's reserve event.
//
// On a storage error the events appended so far are returned along with the
// error; a later sweep picks up the rest.
func (m *Manager) SweepExpired(ctx context.Context, events []ledger.Event, now time.Time) ([]ledger.Event, error) {
	due := m.pending(events, func(b projection.Booking) bool {
		return b.SlotEnd != nil && b.SlotEnd.Before(now)
	})

	var appended []ledger.Event
	for _, b := range due {
		ev := m.terminalEvent(b, projection.HasCheckin(events, b.ID), now)
		ev.Source = ledger.SourceSystem
		if err := m.store.Append(ctx, ev); err != nil {
			return appended, fmt.Errorf("sweep booking %s: %w", b.ID, err)
		}
		appended = append(appended, ev)
		m.logger.Debug("booking closed by sweep", "booking_id", b.ID, "action", ev.Action)
	}

	if len(appended) > 0 {
		m.logger.Info("swept expired bookings", "closed", len(appended), "now", now)
	}
	return appended, nil
}

// CloseDay closes every open booking regardless of its slot, as an operator's
// end-of-day action. The appended events carry reason day_close, source admin
// and slot_end = now when the booking was in progress at now; other bookings
// keep their reserved slot. len of the result is the
// number of bookings closed.
func (m *Manager) CloseDay(ctx context.Context, events []ledger.Event, now time.Time) ([]ledger.Event, error) {
	due := m.pending(events, func(projection.Booking) bool { return true })

	var appended []ledger.Event
	for _, b := range due {
		ev := m.terminalEvent(b, projection.HasCheckin(events, b.ID), now)
		ev.Reason = ledger.ReasonDayClose
		ev.Source = ledger.SourceAdmin
		if ev.HasSlot() && ev.SlotStart.Before(now) && ev.SlotEnd.After(now) {
			ev.SlotEnd = ledger.TimePtr(now)
		}
		if err := m.store.Append(ctx, ev); err != nil {
			return appended, fmt.Errorf("close booking %s: %w", b.ID, err)
		}
		appended = append(appended, ev)
	}

	m.logger.Info("day closed", "closed", len(appended), "now", now)
	return appended, nil
}

// pending returns the open bookings without a terminal row that match due.
func (m *Manager) pending(events []ledger.Event, due func(projection.Booking) bool) []projection.Booking {
	closed := projection.TerminalIDs(events)

	var out []projection.Booking
	for _, b := range projection.Bookings(events) {
		if !b.State.Open() {
			continue
		}
		if _, done := closed[b.ID]; done {
			continue
		}
		if due(b) {
			out = append(out, b)
		}
	}
	return out
}

func (m *Manager) terminalEvent(b projection.Booking, checkedIn bool, now time.Time) ledger.Event {
	origin := b.Origin
	ev := ledger.Event{
		ID:          m.ids.New(),
		Timestamp:   now.UTC(),
		RequesterID: origin.RequesterID,
		Action:      projection.TerminalAction(checkedIn),
		Reason:      origin.Reason,
		LotID:       origin.LotID,
		SpotID:      origin.SpotID,
		BookingID:   b.ID,
		Success:     true,
		FreeAfter:   0,
		Capacity:    origin.Capacity,
		AppVersion:  m.appVersion,
		SlotStart:   origin.SlotStart,
		SlotEnd:     origin.SlotEnd,
	}
	// legacy rows can carry half a slot
	if !ev.HasSlot() {
		ev.SlotStart, ev.SlotEnd = nil, nil
	}
	return ev
}
