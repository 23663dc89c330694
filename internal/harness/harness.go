package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/lotledger/internal/engine"
	"github.com/roach88/lotledger/internal/ids"
	"github.com/roach88/lotledger/internal/ledger"
	"github.com/roach88/lotledger/internal/lots"
	"github.com/roach88/lotledger/internal/store"
	"github.com/roach88/lotledger/internal/testutil"
)

// Harness executes one scenario against a fresh engine.
type Harness struct {
	scenario *Scenario
	store    *store.MemoryStore
	engine   *engine.Engine
	clock    *testutil.ManualClock
	last     time.Time
}

// Run executes scenario and evaluates its expectations and assertions.
//
// A failed expectation is reported in the result, not as an error. The
// returned error is for runs that could not complete, such as a store
// failure or an instant that does not parse.
func Run(scenario *Scenario) (*Result, error) {
	day, err := scenario.day()
	if err != nil {
		return nil, err
	}

	st := store.NewMemoryStore()
	defer st.Close()

	clk := testutil.NewManualClock(day)
	h := &Harness{
		scenario: scenario,
		store:    st,
		clock:    clk,
		last:     day,
		engine: engine.New(st, lots.Static(scenario.Lots),
			engine.WithClock(clk),
			engine.WithIDs(ids.NewSequence("id")),
			engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			engine.WithSource(ledger.SourceUI),
		),
	}

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
	}

	actx := &AssertionContext{Ctx: ctx, Engine: h.engine, Store: st, At: h.last}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	at, err := h.scenario.instant(step.At)
	if err != nil {
		return err
	}
	h.clock.Set(at)
	h.last = at

	trace := TraceStep{Seq: i + 1, Op: step.Op, At: step.At}
	var (
		res    engine.Result
		closed []ledger.Event
		reqErr error
	)

	switch step.Op {
	case OpReserve:
		var start, end time.Time
		if start, err = h.scenario.instant(step.Start); err != nil {
			return err
		}
		if end, err = h.scenario.instant(step.End); err != nil {
			return err
		}
		res, reqErr = h.engine.Reserve(ctx, engine.ReserveRequest{
			RequesterID: step.Requester,
			LotID:       step.Lot,
			Reason:      step.Reason,
			Start:       start,
			End:         end,
		})
		if step.As != "" && res.BookingID != "" {
			result.Bookings[step.As] = res.BookingID
		}
	case OpCancel:
		res, reqErr = h.engine.Cancel(ctx, step.Requester, step.Lot)
	case OpCheckin:
		res, reqErr = h.engine.Checkin(ctx, step.Requester, resolveBooking(result, step.Booking))
	case OpSweep:
		if closed, err = h.engine.Sweep(ctx, at); err != nil {
			return err
		}
		trace.Outcome = "closed"
		trace.Events = traceEvents(closed)
	case OpCloseDay:
		if closed, err = h.engine.CloseDay(ctx, at); err != nil {
			return err
		}
		trace.Outcome = "closed"
		trace.Events = traceEvents(closed)
	case OpOccupancy:
		rows, err := h.engine.Occupancy(ctx, at)
		if err != nil {
			return err
		}
		for _, row := range rows {
			trace.Occupied = append(trace.Occupied, LotCount{LotID: row.LotID, Occupied: row.Occupied})
		}
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	switch {
	case engine.IsRequestError(reqErr):
		trace.Outcome = "error"
		trace.Reason = string(engine.RequestErrorCodeOf(reqErr))
	case reqErr != nil:
		return reqErr
	case step.Op == OpReserve || step.Op == OpCancel || step.Op == OpCheckin:
		trace.Outcome = string(res.Outcome)
		trace.Reason = string(res.Reason)
		trace.Booking = bookingName(result, res.BookingID)
		trace.Events = traceEvents(res.Events)
	}

	result.Trace = append(result.Trace, trace)
	checkExpect(result, trace, step, res, closed)
	return nil
}

// checkExpect compares one step with its expect clause.
func checkExpect(result *Result, trace TraceStep, step Step, res engine.Result, closed []ledger.Event) {
	exp := step.Expect
	if exp == nil {
		return
	}
	prefix := fmt.Sprintf("step %d (%s at %s)", trace.Seq, step.Op, step.At)

	if exp.Outcome != "" && exp.Outcome != trace.Outcome {
		result.AddError(fmt.Sprintf("%s: expected outcome %q, got %q", prefix, exp.Outcome, trace.Outcome))
	}
	if exp.Reason != "" && exp.Reason != trace.Reason {
		result.AddError(fmt.Sprintf("%s: expected reason %q, got %q", prefix, exp.Reason, trace.Reason))
	}
	if exp.Free != nil && *exp.Free != res.FreeAfter {
		result.AddError(fmt.Sprintf("%s: expected free %d, got %d", prefix, *exp.Free, res.FreeAfter))
	}
	if exp.Closed != nil && *exp.Closed != len(closed) {
		result.AddError(fmt.Sprintf("%s: expected %d closed, got %d", prefix, *exp.Closed, len(closed)))
	}
	for lotID, want := range exp.Occupied {
		i := slices.IndexFunc(trace.Occupied, func(c LotCount) bool { return c.LotID == lotID })
		if i < 0 {
			result.AddError(fmt.Sprintf("%s: lot %s not in occupancy", prefix, lotID))
			continue
		}
		if got := trace.Occupied[i].Occupied; got != want {
			result.AddError(fmt.Sprintf("%s: expected lot %s occupied %d, got %d", prefix, lotID, want, got))
		}
	}
}

// resolveBooking maps a booking name to its id. Unknown names are used as
// literal ids.
func resolveBooking(result *Result, name string) string {
	if id, ok := result.Bookings[name]; ok {
		return id
	}
	return name
}

// bookingName is the inverse of resolveBooking, for readable traces.
func bookingName(result *Result, id string) string {
	for name, known := range result.Bookings {
		if known == id {
			return name
		}
	}
	return id
}
