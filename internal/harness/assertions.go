package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/lotledger/internal/engine"
	"github.com/roach88/lotledger/internal/ledger"
	"github.com/roach88/lotledger/internal/projection"
	"github.com/roach88/lotledger/internal/store"
)

// AssertionContext is what assertions evaluate against.
type AssertionContext struct {
	Ctx    context.Context
	Engine *engine.Engine
	Store  store.EventStore

	// At is the instant of the last step; replay_ok folds as of At.
	At time.Time
}

// AssertionError describes a failed assertion.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Log      []ledger.Event
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Log) > 0 {
		fmt.Fprintf(&buf, "\nLog:\n")
		for i, ev := range e.Log {
			fmt.Fprintf(&buf, "  [%d] %s %s success=%t booking=%s code=%s\n",
				i+1, ledger.FormatInstant(ev.Timestamp), ev.Action, ev.Success, ev.BookingID, ev.ErrorCode)
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	if len(assertions) == 0 {
		return nil
	}

	log, err := actx.Store.ReadAll(actx.Ctx)
	if err != nil {
		return []string{fmt.Sprintf("read log: %v", err)}
	}

	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertLogCount:
			err = assertLogCount(log, a)
		case AssertLogOrder:
			err = assertLogOrder(log, a)
		case AssertBookingState:
			err = assertBookingState(log, result, a)
		case AssertReplayOK:
			err = assertReplayOK(actx)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertion %d (%s): %v", i+1, a.Type, err))
		}
	}
	return failures
}

// assertLogCount checks that the log holds exactly Count events of Action,
// failed ones included.
func assertLogCount(log []ledger.Event, a Assertion) error {
	count := 0
	for _, ev := range log {
		if string(ev.Action) == a.Action {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertLogCount,
			Expected: fmt.Sprintf("%d %s events", a.Count, a.Action),
			Actual:   fmt.Sprintf("%d events", count),
			Log:      log,
		}
	}
	return nil
}

// assertLogOrder checks that the first event of each action appears in the
// listed order. Other events may appear in between.
func assertLogOrder(log []ledger.Event, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range log {
		action := string(ev.Action)
		if _, seen := positions[action]; !seen {
			positions[action] = i + 1
		}
	}

	for _, action := range a.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertLogOrder,
				Expected: fmt.Sprintf("all actions present: %v", a.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Log:      log,
			}
		}
	}
	for i := 1; i < len(a.Actions); i++ {
		prev, curr := a.Actions[i-1], a.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertLogOrder,
				Expected: fmt.Sprintf("actions in order: %v", a.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Log: log,
			}
		}
	}
	return nil
}

// assertBookingState checks the derived state of a named booking.
func assertBookingState(log []ledger.Event, result *Result, a Assertion) error {
	id := resolveBooking(result, a.Booking)
	b, ok := projection.FindBooking(log, id)
	if !ok {
		return &AssertionError{
			Type:     AssertBookingState,
			Expected: fmt.Sprintf("booking %s in state %s", a.Booking, a.State),
			Actual:   "booking not found",
			Log:      log,
		}
	}
	if string(b.State) != a.State {
		return &AssertionError{
			Type:     AssertBookingState,
			Expected: fmt.Sprintf("booking %s in state %s", a.Booking, a.State),
			Actual:   fmt.Sprintf("state %s", b.State),
			Log:      log,
		}
	}
	return nil
}

func assertReplayOK(actx *AssertionContext) error {
	report, err := actx.Engine.Replay(actx.Ctx, actx.At)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if !report.OK() {
		return &AssertionError{
			Type:     AssertReplayOK,
			Expected: "deterministic replay without violations",
			Actual:   strings.Join(append(report.Mismatches, report.Violations...), "; "),
		}
	}
	return nil
}
