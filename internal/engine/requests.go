package engine

import (
	"context"
	"time"

	"github.com/roach88/lotledger/internal/conflict"
	"github.com/roach88/lotledger/internal/ledger"
	"github.com/roach88/lotledger/internal/projection"
)

// ReserveRequest asks for lot LotID during [Start, End).
type ReserveRequest struct {
	RequesterID string
	LotID       string
	Reason      string
	Start       time.Time
	End         time.Time
}

// Reserve admits or waitlists a reservation.
//
// Admitted requests append a reserve event carrying a new booking id.
// Requests that overlap an open booking on the lot, or find no free space
// at the requested start, append a waitlist event carrying the reason and
// no booking id.
func (e *Engine) Reserve(ctx context.Context, req ReserveRequest) (Result, error) {
	req.RequesterID = ledger.NormalizeText(req.RequesterID)
	req.LotID = ledger.NormalizeText(req.LotID)
	req.Reason = ledger.NormalizeText(req.Reason)

	res, err := e.reserve(ctx, req)
	e.record("reserve", res, err)
	return res, err
}

func (e *Engine) reserve(ctx context.Context, req ReserveRequest) (Result, error) {
	if req.RequesterID == "" {
		return Result{}, missingRequester()
	}
	if !req.Start.Before(req.End) {
		return Result{}, invalidSlot()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	configured, events, err := e.snapshot(ctx)
	if err != nil {
		return Result{}, err
	}
	lot, ok := ledger.FindLot(configured, req.LotID)
	if !ok {
		return Result{}, unknownLot(req.LotID)
	}
	if !lot.Active {
		return Result{}, inactiveLot(req.LotID)
	}

	d := conflict.Admit(events, configured, lot.ID, req.Start, req.End)

	var bookingID string
	if d.Admitted {
		bookingID = e.ids.New()
	}
	ev := e.newEvent(e.clock.Now(), ledger.ActionReserve)
	ev.RequesterID = req.RequesterID
	ev.Reason = req.Reason
	ev.LotID = lot.ID
	ev.Capacity = lot.Capacity
	ev.Success = true
	ev.SlotStart = ledger.TimePtr(req.Start)
	ev.SlotEnd = ledger.TimePtr(req.End)

	res := Result{}
	if d.Admitted {
		ev.BookingID = bookingID
		ev.FreeAfter = d.FreeAfter
		res = Result{Outcome: OutcomeAdmitted, BookingID: bookingID, FreeAfter: d.FreeAfter}
	} else {
		ev.Action = ledger.ActionWaitlist
		ev.ErrorCode = d.Reason
		res = Result{Outcome: OutcomeWaitlisted, Reason: d.Reason}
	}

	if err := e.append(ctx, ev); err != nil {
		return Result{}, err
	}
	res.Events = []ledger.Event{ev}
	e.publish(ctx, res.Events)
	return res, nil
}

// Cancel cancels the requester's most recent open booking on lotID.
//
// With nothing to cancel, a failed cancel event with NO_ACTIVE_BOOKING is
// appended for the audit trail and the outcome is Rejected.
func (e *Engine) Cancel(ctx context.Context, requesterID, lotID string) (Result, error) {
	res, err := e.cancel(ctx, ledger.NormalizeText(requesterID), ledger.NormalizeText(lotID))
	e.record("cancel", res, err)
	return res, err
}

func (e *Engine) cancel(ctx context.Context, requesterID, lotID string) (Result, error) {
	if requesterID == "" {
		return Result{}, missingRequester()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	configured, events, err := e.snapshot(ctx)
	if err != nil {
		return Result{}, err
	}
	lot, ok := ledger.FindLot(configured, lotID)
	if !ok {
		return Result{}, unknownLot(lotID)
	}

	now := e.clock.Now()
	ev := e.newEvent(now, ledger.ActionCancel)
	ev.RequesterID = requesterID
	ev.LotID = lot.ID
	ev.Capacity = lot.Capacity

	var res Result
	bookingID, found := projection.LastActiveBooking(events, requesterID, lot.ID)
	if !found {
		ev.ErrorCode = ledger.CodeNoActiveBooking
		ev.FreeAfter = e.free(configured, events, lot, now)
		res = Result{Outcome: OutcomeRejected, Reason: ledger.CodeNoActiveBooking, FreeAfter: ev.FreeAfter}
	} else {
		b, _ := projection.FindBooking(events, bookingID)
		ev.Success = true
		ev.BookingID = bookingID
		ev.Reason = b.Reason
		if b.SlotStart != nil && b.SlotEnd != nil {
			ev.SlotStart, ev.SlotEnd = b.SlotStart, b.SlotEnd
		}
		// free_after reflects the log including this cancel
		ev.FreeAfter = e.free(configured, append(events, ev), lot, now)
		res = Result{Outcome: OutcomeCancelled, BookingID: bookingID, FreeAfter: ev.FreeAfter}
	}

	if err := e.append(ctx, ev); err != nil {
		return Result{}, err
	}
	res.Events = []ledger.Event{ev}
	e.publish(ctx, res.Events)
	return res, nil
}

// Checkin records the requester's arrival for bookingID.
//
// A second check-in is rejected with DUPLICATE_CHECKIN. A booking that is
// unknown, closed, already ended or held by someone else is rejected with
// NO_ACTIVE_BOOKING. Both append a failed checkin event.
func (e *Engine) Checkin(ctx context.Context, requesterID, bookingID string) (Result, error) {
	res, err := e.checkin(ctx, ledger.NormalizeText(requesterID), ledger.NormalizeText(bookingID))
	e.record("checkin", res, err)
	return res, err
}

func (e *Engine) checkin(ctx context.Context, requesterID, bookingID string) (Result, error) {
	if requesterID == "" {
		return Result{}, missingRequester()
	}
	if bookingID == "" {
		return Result{}, unknownBooking(bookingID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	configured, events, err := e.snapshot(ctx)
	if err != nil {
		return Result{}, err
	}

	now := e.clock.Now()
	ev := e.newEvent(now, ledger.ActionCheckin)
	ev.RequesterID = requesterID
	ev.BookingID = bookingID

	b, known := projection.FindBooking(events, bookingID)
	if known {
		ev.LotID = b.LotID
		ev.Reason = b.Reason
		if b.SlotStart != nil && b.SlotEnd != nil {
			ev.SlotStart, ev.SlotEnd = b.SlotStart, b.SlotEnd
		}
		if lot, ok := ledger.FindLot(configured, b.LotID); ok {
			ev.Capacity = lot.Capacity
			ev.FreeAfter = e.free(configured, events, lot, now)
		}
	}

	var res Result
	switch {
	case known && projection.HasCheckin(events, bookingID):
		ev.ErrorCode = ledger.CodeDuplicateCheckin
		res = Result{Outcome: OutcomeRejected, Reason: ledger.CodeDuplicateCheckin, BookingID: bookingID}
	case !known || !b.ActiveAt(now) || !projection.SameRequester(b.RequesterID, requesterID):
		ev.ErrorCode = ledger.CodeNoActiveBooking
		res = Result{Outcome: OutcomeRejected, Reason: ledger.CodeNoActiveBooking, BookingID: bookingID}
	default:
		ev.Success = true
		res = Result{Outcome: OutcomeCheckedIn, BookingID: bookingID}
	}
	res.FreeAfter = ev.FreeAfter

	if err := e.append(ctx, ev); err != nil {
		return Result{}, err
	}
	res.Events = []ledger.Event{ev}
	e.publish(ctx, res.Events)
	return res, nil
}

func (e *Engine) free(configured []ledger.Lot, events []ledger.Event, lot ledger.Lot, now time.Time) int {
	return projection.Free(lot, projection.Occupancy(configured, events, now)[lot.ID])
}

// record counts a request by outcome.
func (e *Engine) record(operation string, res Result, err error) {
	outcome := string(res.Outcome)
	switch {
	case IsRequestError(err):
		outcome = "invalid"
	case err != nil:
		outcome = "error"
	}
	e.metrics.Request(operation, outcome)
}
