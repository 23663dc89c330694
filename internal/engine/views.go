package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/lotledger/internal/ledger"
	"github.com/roach88/lotledger/internal/projection"
)

// Occupancy reports every configured lot at instant at, in configuration
// order.
func (e *Engine) Occupancy(ctx context.Context, at time.Time) ([]LotOccupancy, error) {
	configured, events, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	occupied := projection.Occupancy(configured, events, at)

	out := make([]LotOccupancy, 0, len(configured))
	for _, lot := range configured {
		row := LotOccupancy{
			LotID:    lot.ID,
			Name:     lot.Name,
			Capacity: lot.Capacity,
			Occupied: occupied[lot.ID],
			Free:     projection.Free(lot, occupied[lot.ID]),
			Active:   lot.Active,
		}
		e.metrics.Occupancy(row.LotID, row.Occupied, row.Free)
		out = append(out, row)
	}
	return out, nil
}

// ActiveBookings returns the bookings that count against their lot at at.
func (e *Engine) ActiveBookings(ctx context.Context, at time.Time) ([]projection.Booking, error) {
	events, err := e.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return projection.ActiveBookings(events, at), nil
}

// RequesterBookings returns the active bookings of one requester at at,
// ordered by slot start.
func (e *Engine) RequesterBookings(ctx context.Context, requesterID string, at time.Time) ([]projection.Booking, error) {
	events, err := e.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return projection.RequesterBookings(events, ledger.NormalizeText(requesterID), at), nil
}

// Waitlist returns every waitlist entry in log order.
func (e *Engine) Waitlist(ctx context.Context) ([]projection.WaitlistEntry, error) {
	events, err := e.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return projection.Waitlist(events), nil
}

// Booking returns one booking with its derived state.
func (e *Engine) Booking(ctx context.Context, bookingID string) (projection.Booking, error) {
	events, err := e.store.ReadAll(ctx)
	if err != nil {
		return projection.Booking{}, fmt.Errorf("read events: %w", err)
	}
	b, ok := projection.FindBooking(events, bookingID)
	if !ok {
		return projection.Booking{}, unknownBooking(bookingID)
	}
	return b, nil
}

// Trace returns every event carrying bookingID, in log order.
func (e *Engine) Trace(ctx context.Context, bookingID string) ([]ledger.Event, error) {
	events, err := e.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	var out []ledger.Event
	for _, ev := range events {
		if ev.BookingID == bookingID {
			out = append(out, ev)
		}
	}
	if len(out) == 0 {
		return nil, unknownBooking(bookingID)
	}
	return out, nil
}

// Sweep closes bookings whose slot ended before now and returns the events
// appended. Idempotent for a given now.
func (e *Engine) Sweep(ctx context.Context, now time.Time) ([]ledger.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	events, err := e.store.ReadAll(ctx)
	if err != nil {
		e.metrics.Request("sweep", "error")
		return nil, fmt.Errorf("read events: %w", err)
	}
	closed, err := e.lifecycle.SweepExpired(ctx, events, now)
	e.finishLifecycle(ctx, "sweep", closed, err)
	return closed, err
}

// CloseDay closes every open booking as of now and returns the events
// appended; their count is the number of bookings closed.
func (e *Engine) CloseDay(ctx context.Context, now time.Time) ([]ledger.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	events, err := e.store.ReadAll(ctx)
	if err != nil {
		e.metrics.Request("close_day", "error")
		return nil, fmt.Errorf("read events: %w", err)
	}
	closed, err := e.lifecycle.CloseDay(ctx, events, now)
	e.finishLifecycle(ctx, "close_day", closed, err)
	return closed, err
}

func (e *Engine) finishLifecycle(ctx context.Context, operation string, closed []ledger.Event, err error) {
	e.metrics.Closed(closed)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.metrics.Request(operation, outcome)
	e.publish(ctx, closed)
}
