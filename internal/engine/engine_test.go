package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lotledger/internal/ids"
	"github.com/roach88/lotledger/internal/ledger"
	"github.com/roach88/lotledger/internal/lots"
	"github.com/roach88/lotledger/internal/notify"
	"github.com/roach88/lotledger/internal/projection"
	"github.com/roach88/lotledger/internal/store"
	"github.com/roach88/lotledger/internal/testutil"
)

var testLots = lots.Static{
	{ID: "P1", Name: "Norte", Capacity: 2, Active: true},
	{ID: "P2", Name: "Sur", Capacity: 1, Active: true},
	{ID: "P9", Name: "Cerrado", Capacity: 3, Active: false},
}

type fixture struct {
	engine *Engine
	store  *store.MemoryStore
	clock  *testutil.ManualClock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	clk := testutil.NewManualClock(testutil.At("07:00"))
	base := []Option{
		WithClock(clk),
		WithIDs(ids.NewSequence("id")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return &fixture{
		engine: New(st, testLots, append(base, opts...)...),
		store:  st,
		clock:  clk,
	}
}

func (f *fixture) reserve(t *testing.T, requester, lot, start, end string) Result {
	t.Helper()
	res, err := f.engine.Reserve(context.Background(), ReserveRequest{
		RequesterID: requester,
		LotID:       lot,
		Reason:      "clase",
		Start:       testutil.At(start),
		End:         testutil.At(end),
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) events(t *testing.T) []ledger.Event {
	t.Helper()
	events, err := f.store.ReadAll(context.Background())
	require.NoError(t, err)
	return events
}

func TestReserve_Admitted(t *testing.T) {
	f := newFixture(t)

	res := f.reserve(t, "u1", "P1", "10:00", "11:00")

	assert.Equal(t, OutcomeAdmitted, res.Outcome)
	assert.True(t, res.OK())
	assert.Equal(t, "id-0001", res.BookingID)
	assert.Equal(t, 1, res.FreeAfter)
	require.Len(t, res.Events, 1)

	ev := res.Events[0]
	assert.Equal(t, "id-0002", ev.ID)
	assert.Equal(t, ledger.ActionReserve, ev.Action)
	assert.True(t, ev.Success)
	assert.Equal(t, "id-0001", ev.BookingID)
	assert.Equal(t, 2, ev.Capacity)
	assert.Equal(t, ledger.SourceCLI, ev.Source)
	assert.Equal(t, DefaultAppVersion, ev.AppVersion)
	assert.Equal(t, testutil.At("07:00"), ev.Timestamp)
	assert.Equal(t, f.events(t), res.Events)
}

func TestReserve_NormalizesInput(t *testing.T) {
	f := newFixture(t)

	res := f.reserve(t, "  u1 ", " P1", "10:00", "11:00")

	require.Equal(t, OutcomeAdmitted, res.Outcome)
	assert.Equal(t, "u1", res.Events[0].RequesterID)
	assert.Equal(t, "P1", res.Events[0].LotID)
}

func TestReserve_OverlapIsWaitlisted(t *testing.T) {
	f := newFixture(t)
	f.reserve(t, "u1", "P1", "10:00", "11:00")

	res := f.reserve(t, "u2", "P1", "10:30", "11:30")

	assert.Equal(t, OutcomeWaitlisted, res.Outcome)
	assert.False(t, res.OK())
	assert.Equal(t, ledger.CodeOverlap, res.Reason)
	assert.Empty(t, res.BookingID)

	ev := res.Events[0]
	assert.Equal(t, ledger.ActionWaitlist, ev.Action)
	assert.True(t, ev.Success)
	assert.Equal(t, ledger.CodeOverlap, ev.ErrorCode)
	assert.Empty(t, ev.BookingID)
	assert.Equal(t, 0, ev.FreeAfter)
	assert.Len(t, f.events(t), 2)
}

func TestReserve_AdjacentSlotsDoNotOverlap(t *testing.T) {
	f := newFixture(t)
	f.reserve(t, "u1", "P1", "10:00", "11:00")

	res := f.reserve(t, "u2", "P1", "11:00", "12:00")

	assert.Equal(t, OutcomeAdmitted, res.Outcome)
}

func TestReserve_NoCapacity(t *testing.T) {
	f := newFixture(t)
	f.reserve(t, "u1", "P2", "10:00", "11:00")

	// P2 holds one car and the 10:00 booking is still active at 08:00
	res := f.reserve(t, "u2", "P2", "08:00", "09:00")

	assert.Equal(t, OutcomeWaitlisted, res.Outcome)
	assert.Equal(t, ledger.CodeNoCapacity, res.Reason)
}

func TestReserve_CancelThenRebook(t *testing.T) {
	f := newFixture(t)
	first := f.reserve(t, "u1", "P1", "10:00", "11:00")

	cancelled, err := f.engine.Cancel(context.Background(), "u1", "P1")
	require.NoError(t, err)
	require.Equal(t, OutcomeCancelled, cancelled.Outcome)
	assert.Equal(t, first.BookingID, cancelled.BookingID)

	res := f.reserve(t, "u2", "P1", "10:00", "11:00")
	assert.Equal(t, OutcomeAdmitted, res.Outcome)
}

func TestReserve_RequestErrors(t *testing.T) {
	tests := []struct {
		name string
		req  ReserveRequest
		code RequestErrorCode
	}{
		{
			name: "missing requester",
			req:  ReserveRequest{RequesterID: "  ", LotID: "P1", Start: testutil.At("10:00"), End: testutil.At("11:00")},
			code: ErrCodeMissingRequester,
		},
		{
			name: "empty slot",
			req:  ReserveRequest{RequesterID: "u1", LotID: "P1", Start: testutil.At("10:00"), End: testutil.At("10:00")},
			code: ErrCodeInvalidSlot,
		},
		{
			name: "reversed slot",
			req:  ReserveRequest{RequesterID: "u1", LotID: "P1", Start: testutil.At("11:00"), End: testutil.At("10:00")},
			code: ErrCodeInvalidSlot,
		},
		{
			name: "unknown lot",
			req:  ReserveRequest{RequesterID: "u1", LotID: "P7", Start: testutil.At("10:00"), End: testutil.At("11:00")},
			code: ErrCodeUnknownLot,
		},
		{
			name: "inactive lot",
			req:  ReserveRequest{RequesterID: "u1", LotID: "P9", Start: testutil.At("10:00"), End: testutil.At("11:00")},
			code: ErrCodeInactiveLot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.engine.Reserve(context.Background(), tt.req)

			require.Error(t, err)
			assert.True(t, IsRequestError(err))
			assert.Equal(t, tt.code, RequestErrorCodeOf(err))
			assert.Empty(t, f.events(t), "request errors must not write events")
		})
	}
}

func TestCancel_NothingToCancel(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.Cancel(context.Background(), "u1", "P1")

	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, ledger.CodeNoActiveBooking, res.Reason)
	assert.Equal(t, 2, res.FreeAfter)

	events := f.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, ledger.ActionCancel, events[0].Action)
	assert.False(t, events[0].Success)
	assert.Equal(t, ledger.CodeNoActiveBooking, events[0].ErrorCode)
	assert.False(t, events[0].HasSlot())
}

func TestCancel_PicksLatestSlot(t *testing.T) {
	f := newFixture(t)
	f.reserve(t, "u1", "P1", "08:00", "09:00")
	later := f.reserve(t, "u1", "P1", "14:00", "15:00")

	res, err := f.engine.Cancel(context.Background(), "U1", "P1")

	require.NoError(t, err)
	assert.Equal(t, later.BookingID, res.BookingID)
	assert.Equal(t, 1, res.FreeAfter)

	ev := res.Events[0]
	assert.True(t, ev.Success)
	assert.Equal(t, testutil.At("14:00"), *ev.SlotStart)
	assert.Equal(t, "clase", ev.Reason)
}

func TestCancel_UnknownLot(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Cancel(context.Background(), "u1", "nope")

	assert.Equal(t, ErrCodeUnknownLot, RequestErrorCodeOf(err))
	assert.Empty(t, f.events(t))
}

func TestCheckin(t *testing.T) {
	f := newFixture(t)
	booked := f.reserve(t, "u1", "P1", "10:00", "11:00")
	f.clock.Set(testutil.At("10:05"))

	res, err := f.engine.Checkin(context.Background(), "u1", booked.BookingID)

	require.NoError(t, err)
	assert.Equal(t, OutcomeCheckedIn, res.Outcome)
	ev := res.Events[0]
	assert.True(t, ev.Is(ledger.ActionCheckin))
	assert.Equal(t, "P1", ev.LotID)
	assert.Equal(t, 2, ev.Capacity)
	assert.Equal(t, 1, ev.FreeAfter)

	b, err := f.engine.Booking(context.Background(), booked.BookingID)
	require.NoError(t, err)
	assert.Equal(t, projection.StateCheckedIn, b.State)
}

func TestCheckin_Duplicate(t *testing.T) {
	f := newFixture(t)
	booked := f.reserve(t, "u1", "P1", "10:00", "11:00")
	_, err := f.engine.Checkin(context.Background(), "u1", booked.BookingID)
	require.NoError(t, err)

	res, err := f.engine.Checkin(context.Background(), "u1", booked.BookingID)

	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, ledger.CodeDuplicateCheckin, res.Reason)
	assert.False(t, res.Events[0].Success)
	assert.Equal(t, ledger.CodeDuplicateCheckin, res.Events[0].ErrorCode)
}

func TestCheckin_NoActiveBooking(t *testing.T) {
	tests := []struct {
		name      string
		requester string
		booking   func(f *fixture, id string) string
		now       string
	}{
		{
			name:      "other requester",
			requester: "u2",
			booking:   func(_ *fixture, id string) string { return id },
			now:       "10:05",
		},
		{
			name:      "slot ended",
			requester: "u1",
			booking:   func(_ *fixture, id string) string { return id },
			now:       "11:01",
		},
		{
			name:      "unknown booking",
			requester: "u1",
			booking:   func(_ *fixture, _ string) string { return "missing" },
			now:       "10:05",
		},
		{
			name:      "cancelled booking",
			requester: "u1",
			booking: func(f *fixture, id string) string {
				_, err := f.engine.Cancel(context.Background(), "u1", "P1")
				if err != nil {
					panic(err)
				}
				return id
			},
			now: "10:05",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			booked := f.reserve(t, "u1", "P1", "10:00", "11:00")
			id := tt.booking(f, booked.BookingID)
			f.clock.Set(testutil.At(tt.now))

			res, err := f.engine.Checkin(context.Background(), tt.requester, id)

			require.NoError(t, err)
			assert.Equal(t, OutcomeRejected, res.Outcome)
			assert.Equal(t, ledger.CodeNoActiveBooking, res.Reason)
			assert.False(t, res.Events[0].Success)
			assert.False(t, projection.HasCheckin(f.events(t), id))
		})
	}
}

func TestCheckin_EmptyBookingID(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Checkin(context.Background(), "u1", " ")

	assert.Equal(t, ErrCodeUnknownBooking, RequestErrorCodeOf(err))
	assert.Empty(t, f.events(t))
}

func TestReserve_ConcurrentRequestsNeverDoubleBook(t *testing.T) {
	f := newFixture(t)
	const requesters = 20

	results := make([]Result, requesters)
	var wg sync.WaitGroup
	for i := 0; i < requesters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.engine.Reserve(context.Background(), ReserveRequest{
				RequesterID: "u" + string(rune('a'+i)),
				LotID:       "P1",
				Start:       testutil.At("10:00"),
				End:         testutil.At("11:00"),
			})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, res := range results {
		if res.Outcome == OutcomeAdmitted {
			admitted++
		} else {
			assert.Equal(t, ledger.CodeOverlap, res.Reason)
		}
	}
	assert.Equal(t, 1, admitted)
	assert.Len(t, f.events(t), requesters)

	report, err := f.engine.Replay(context.Background(), testutil.At("10:00"))
	require.NoError(t, err)
	assert.True(t, report.OK(), "violations: %v", report.Violations)
}

func TestReserve_ConcurrentDisjointSlotsRespectCapacity(t *testing.T) {
	f := newFixture(t)
	slots := [][2]string{
		{"08:00", "09:00"}, {"09:00", "10:00"}, {"10:00", "11:00"},
		{"11:00", "12:00"}, {"12:00", "13:00"}, {"13:00", "14:00"},
	}

	var wg sync.WaitGroup
	for i, slot := range slots {
		wg.Add(1)
		go func(i int, start, end string) {
			defer wg.Done()
			_, err := f.engine.Reserve(context.Background(), ReserveRequest{
				RequesterID: "u" + string(rune('a'+i)),
				LotID:       "P1",
				Start:       testutil.At(start),
				End:         testutil.At(end),
			})
			assert.NoError(t, err)
		}(i, slot[0], slot[1])
	}
	wg.Wait()

	admitted := 0
	for _, b := range projection.Bookings(f.events(t)) {
		if b.State.Open() {
			admitted++
		}
	}
	assert.GreaterOrEqual(t, admitted, 2)

	for _, at := range []string{"08:30", "10:30", "13:30"} {
		report, err := f.engine.Replay(context.Background(), testutil.At(at))
		require.NoError(t, err)
		assert.Empty(t, report.Violations, "at %s", at)
	}
}

// faultyStore fails every append with err.
type faultyStore struct {
	*store.MemoryStore
	err error
}

func (s *faultyStore) Append(ctx context.Context, ev ledger.Event) error {
	return s.err
}

func TestReserve_LockTimeoutWritesNothing(t *testing.T) {
	st := &faultyStore{MemoryStore: store.NewMemoryStore(), err: store.ErrLockTimeout}
	e := New(st, testLots,
		WithIDs(ids.NewSequence("id")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	res, err := e.Reserve(context.Background(), ReserveRequest{
		RequesterID: "u1",
		LotID:       "P1",
		Start:       testutil.At("10:00"),
		End:         testutil.At("11:00"),
	})

	require.Error(t, err)
	assert.True(t, store.IsLockTimeout(err))
	assert.False(t, IsRequestError(err))
	assert.Empty(t, res.Events)
	assert.Zero(t, st.Len())
}

func TestPublisher(t *testing.T) {
	var (
		mu        sync.Mutex
		published []ledger.Event
	)
	pub := notify.PublisherFunc(func(_ context.Context, events []ledger.Event) error {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, events...)
		return nil
	})
	f := newFixture(t, WithPublisher(pub))

	res := f.reserve(t, "u1", "P1", "10:00", "11:00")

	require.Len(t, published, 1)
	assert.Equal(t, res.Events[0].ID, published[0].ID)
}

func TestPublisher_FailureDoesNotFailRequest(t *testing.T) {
	pub := notify.PublisherFunc(func(context.Context, []ledger.Event) error {
		return errors.New("broker down")
	})
	f := newFixture(t, WithPublisher(pub))

	res := f.reserve(t, "u1", "P1", "10:00", "11:00")

	assert.Equal(t, OutcomeAdmitted, res.Outcome)
	assert.Len(t, f.events(t), 1)
}

func TestOccupancy(t *testing.T) {
	f := newFixture(t)
	f.reserve(t, "u1", "P1", "10:00", "11:00")
	f.reserve(t, "u2", "P2", "10:00", "11:00")

	occ, err := f.engine.Occupancy(context.Background(), testutil.At("10:30"))

	require.NoError(t, err)
	assert.Equal(t, []LotOccupancy{
		{LotID: "P1", Name: "Norte", Capacity: 2, Occupied: 1, Free: 1, Active: true},
		{LotID: "P2", Name: "Sur", Capacity: 1, Occupied: 1, Free: 0, Active: true},
		{LotID: "P9", Name: "Cerrado", Capacity: 3, Occupied: 0, Free: 3, Active: false},
	}, occ)

	occ, err = f.engine.Occupancy(context.Background(), testutil.At("11:01"))
	require.NoError(t, err)
	assert.Equal(t, 0, occ[0].Occupied)
}

func TestViews(t *testing.T) {
	f := newFixture(t)
	first := f.reserve(t, "u1", "P1", "10:00", "11:00")
	f.reserve(t, "u1", "P2", "08:00", "09:00")
	f.reserve(t, "u2", "P1", "10:30", "11:30")

	active, err := f.engine.ActiveBookings(context.Background(), testutil.At("07:30"))
	require.NoError(t, err)
	assert.Len(t, active, 2)

	mine, err := f.engine.RequesterBookings(context.Background(), "u1", testutil.At("07:30"))
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "P2", mine[0].LotID)

	waitlist, err := f.engine.Waitlist(context.Background())
	require.NoError(t, err)
	require.Len(t, waitlist, 1)
	assert.Equal(t, "u2", waitlist[0].RequesterID)
	assert.Equal(t, ledger.CodeOverlap, waitlist[0].Code)

	trace, err := f.engine.Trace(context.Background(), first.BookingID)
	require.NoError(t, err)
	assert.Len(t, trace, 1)
}

func TestTrace_UnknownBooking(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Trace(context.Background(), "missing")
	assert.Equal(t, ErrCodeUnknownBooking, RequestErrorCodeOf(err))

	_, err = f.engine.Booking(context.Background(), "missing")
	assert.Equal(t, ErrCodeUnknownBooking, RequestErrorCodeOf(err))
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	shown := f.reserve(t, "u1", "P1", "08:00", "09:00")
	missed := f.reserve(t, "u2", "P2", "08:00", "09:00")
	f.reserve(t, "u3", "P1", "12:00", "13:00")
	f.clock.Set(testutil.At("08:10"))
	_, err := f.engine.Checkin(context.Background(), "u1", shown.BookingID)
	require.NoError(t, err)

	closed, err := f.engine.Sweep(context.Background(), testutil.At("10:00"))

	require.NoError(t, err)
	require.Len(t, closed, 2)
	actions := map[string]ledger.Action{}
	for _, ev := range closed {
		actions[ev.BookingID] = ev.Action
		assert.Equal(t, ledger.SourceSystem, ev.Source)
	}
	assert.Equal(t, ledger.ActionExpire, actions[shown.BookingID])
	assert.Equal(t, ledger.ActionNoShow, actions[missed.BookingID])

	again, err := f.engine.Sweep(context.Background(), testutil.At("10:00"))
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestCloseDay(t *testing.T) {
	f := newFixture(t)
	f.reserve(t, "u1", "P1", "08:00", "09:00")
	f.reserve(t, "u2", "P1", "18:00", "19:00")
	f.reserve(t, "u3", "P2", "12:00", "13:00")

	closed, err := f.engine.CloseDay(context.Background(), testutil.At("12:30"))

	require.NoError(t, err)
	assert.Len(t, closed, 3)
	for _, ev := range closed {
		assert.Equal(t, ledger.ReasonDayClose, ev.Reason)
		assert.Equal(t, ledger.SourceAdmin, ev.Source)
	}

	active, err := f.engine.ActiveBookings(context.Background(), testutil.At("12:30"))
	require.NoError(t, err)
	assert.Empty(t, active)

	again, err := f.engine.CloseDay(context.Background(), testutil.At("12:30"))
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestReplay(t *testing.T) {
	f := newFixture(t)
	booked := f.reserve(t, "u1", "P1", "10:00", "11:00")
	f.reserve(t, "u2", "P1", "12:00", "13:00")
	_, err := f.engine.Cancel(context.Background(), "u2", "P1")
	require.NoError(t, err)
	_, err = f.engine.Checkin(context.Background(), "u1", booked.BookingID)
	require.NoError(t, err)

	report, err := f.engine.Replay(context.Background(), testutil.At("10:30"))

	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 4, report.Events)
	assert.Equal(t, 2, report.Bookings)
	assert.Equal(t, map[projection.State]int{
		projection.StateCheckedIn: 1,
		projection.StateCancelled: 1,
	}, report.States)
	assert.Equal(t, 1, report.Occupancy[0].Occupied)
}

func TestReplay_ReportsLegacyDoubleBooking(t *testing.T) {
	st := store.NewMemoryStore()
	log := testutil.NewLog().
		Reserve(testutil.At("07:00"), "u1", "P1", "b1", testutil.At("10:00"), testutil.At("11:00")).
		Reserve(testutil.At("07:01"), "u2", "P1", "b2", testutil.At("10:30"), testutil.At("11:30"))
	for _, ev := range log.Events() {
		require.NoError(t, st.Append(context.Background(), ev))
	}
	e := New(st, testLots, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	report, err := e.Replay(context.Background(), testutil.At("10:00"))

	require.NoError(t, err)
	assert.False(t, report.OK())
	require.Len(t, report.Violations, 1)
	assert.Contains(t, report.Violations[0], "b1 and b2 overlap")

	assert.False(t, report.Deterministic)
	require.Len(t, report.Mismatches, 1)
	assert.Contains(t, report.Mismatches[0], "booking b2 was admitted, replay waitlists it (OVERLAP)")
}

func replayLog(t *testing.T, events []ledger.Event) ReplayReport {
	t.Helper()
	st := store.NewMemoryStore()
	for _, ev := range events {
		require.NoError(t, st.Append(context.Background(), ev))
	}
	e := New(st, testLots, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	report, err := e.Replay(context.Background(), testutil.At("07:30"))
	require.NoError(t, err)
	return report
}

func TestReplay_DetectsRedecidedEntries(t *testing.T) {
	admitted := func(id, booking string, at, start, end string, freeAfter int) ledger.Event {
		return ledger.Event{
			ID: id, Timestamp: testutil.At(at), RequesterID: "u-" + id,
			Action: ledger.ActionReserve, LotID: "P1", BookingID: booking,
			Success: true, FreeAfter: freeAfter, Capacity: 2,
			SlotStart: ledger.TimePtr(testutil.At(start)), SlotEnd: ledger.TimePtr(testutil.At(end)),
		}
	}
	waitlisted := func(id string, at, start, end string, code ledger.ErrorCode) ledger.Event {
		return ledger.Event{
			ID: id, Timestamp: testutil.At(at), RequesterID: "u-" + id,
			Action: ledger.ActionWaitlist, LotID: "P1", Success: true, ErrorCode: code, Capacity: 2,
			SlotStart: ledger.TimePtr(testutil.At(start)), SlotEnd: ledger.TimePtr(testutil.At(end)),
		}
	}

	tests := []struct {
		name     string
		events   []ledger.Event
		mismatch string
	}{
		{
			name: "consistent",
			events: []ledger.Event{
				admitted("e1", "b1", "07:00", "10:00", "11:00", 1),
				waitlisted("e2", "07:01", "10:30", "11:30", ledger.CodeOverlap),
				admitted("e3", "b3", "07:02", "11:00", "12:00", 0),
				waitlisted("e4", "07:03", "09:00", "10:00", ledger.CodeNoCapacity),
			},
		},
		{
			name: "free_after_disagrees",
			events: []ledger.Event{
				admitted("e1", "b1", "07:00", "10:00", "11:00", 1),
				admitted("e2", "b2", "07:01", "11:00", "12:00", 1),
			},
			mismatch: "event e2: booking b2 recorded free_after 1, replay gives 0",
		},
		{
			name: "waitlisted_but_free",
			events: []ledger.Event{
				waitlisted("e1", "07:00", "10:00", "11:00", ledger.CodeNoCapacity),
			},
			mismatch: "event e1: waitlisted with NO_CAPACITY, replay admits it",
		},
		{
			name: "waitlist_reason_disagrees",
			events: []ledger.Event{
				admitted("e1", "b1", "07:00", "10:00", "11:00", 1),
				waitlisted("e2", "07:01", "10:30", "11:30", ledger.CodeNoCapacity),
			},
			mismatch: "event e2: waitlisted with NO_CAPACITY, replay gives OVERLAP",
		},
		{
			name: "admitted_after_a_later_row",
			events: []ledger.Event{
				admitted("e2", "b2", "07:00", "10:30", "11:30", 1),
				admitted("e1", "b1", "06:59", "10:00", "11:00", 1),
			},
			mismatch: "event e2: booking b2 was admitted, replay waitlists it (OVERLAP)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := replayLog(t, tt.events)

			if tt.mismatch == "" {
				assert.True(t, report.Deterministic, "mismatches: %v", report.Mismatches)
				assert.Empty(t, report.Mismatches)
				return
			}
			assert.False(t, report.Deterministic)
			assert.False(t, report.OK())
			assert.Contains(t, report.Mismatches, tt.mismatch)
		})
	}
}

func TestReplay_LegacyRowsWithoutCapacityUseConfiguredLot(t *testing.T) {
	log := testutil.NewLog().
		Reserve(testutil.At("07:00"), "u1", "P2", "b1", testutil.At("10:00"), testutil.At("11:00")).
		Waitlist(testutil.At("07:01"), "u2", "P2", ledger.CodeNoCapacity, testutil.At("11:00"), testutil.At("12:00"))

	report := replayLog(t, log.Events())

	assert.True(t, report.Deterministic, "mismatches: %v", report.Mismatches)
}

func TestDefaults(t *testing.T) {
	e := New(store.NewMemoryStore(), testLots)
	before := time.Now()
	assert.False(t, e.Now().Before(before.Add(-time.Second)))
}
