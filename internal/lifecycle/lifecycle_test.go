package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lotledger/internal/ids"
	"github.com/roach88/lotledger/internal/ledger"
	"github.com/roach88/lotledger/internal/projection"
	"github.com/roach88/lotledger/internal/store"
	"github.com/roach88/lotledger/internal/testutil"
)

// seed appends the builder's events to a fresh MemoryStore.
func seed(t *testing.T, log *testutil.LogBuilder) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	for _, ev := range log.Events() {
		require.NoError(t, st.Append(context.Background(), ev))
	}
	return st
}

func newManager(st store.EventStore) *Manager {
	return NewManager(st, ids.NewSequence("lc"),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAppVersion("test"),
	)
}

func snapshot(t *testing.T, st store.EventStore) []ledger.Event {
	t.Helper()
	events, err := st.ReadAll(context.Background())
	require.NoError(t, err)
	return events
}

func TestSweepExpired_NoShowVersusExpired(t *testing.T) {
	ctx := context.Background()
	st := seed(t, testutil.NewLog().
		Reserve(testutil.At("08:00"), "ana", "P1", "b-absent", testutil.At("09:00"), testutil.At("09:30")).
		Reserve(testutil.At("08:01"), "bob", "P1", "b-present", testutil.At("09:00"), testutil.At("09:30")).
		Checkin(testutil.At("09:05"), "b-present"))
	m := newManager(st)

	appended, err := m.SweepExpired(ctx, snapshot(t, st), testutil.At("10:00"))
	require.NoError(t, err)
	require.Len(t, appended, 2)

	byBooking := map[string]ledger.Event{}
	for _, ev := range appended {
		byBooking[ev.BookingID] = ev
	}
	assert.Equal(t, ledger.ActionNoShow, byBooking["b-absent"].Action)
	assert.Equal(t, ledger.ActionExpire, byBooking["b-present"].Action)

	absent := byBooking["b-absent"]
	assert.Equal(t, "ana", absent.RequesterID)
	assert.Equal(t, "P1", absent.LotID)
	assert.Equal(t, "clase", absent.Reason)
	assert.Equal(t, ledger.SourceSystem, absent.Source)
	assert.Equal(t, "test", absent.AppVersion)
	assert.True(t, absent.Success)
	assert.Equal(t, 0, absent.FreeAfter)
	assert.True(t, absent.Timestamp.Equal(testutil.At("10:00")))
	assert.True(t, absent.SlotStart.Equal(testutil.At("09:00")))
	assert.True(t, absent.SlotEnd.Equal(testutil.At("09:30")))

	states := projection.States(snapshot(t, st))
	assert.Equal(t, projection.StateNoShow, states["b-absent"])
	assert.Equal(t, projection.StateExpired, states["b-present"])
}

func TestSweepExpired_Idempotent(t *testing.T) {
	ctx := context.Background()
	st := seed(t, testutil.NewLog().
		Reserve(testutil.At("08:00"), "ana", "P1", "b1", testutil.At("09:00"), testutil.At("09:30")))
	m := newManager(st)

	first, err := m.SweepExpired(ctx, snapshot(t, st), testutil.At("10:00"))
	require.NoError(t, err)
	assert.Len(t, first, 1)

	second, err := m.SweepExpired(ctx, snapshot(t, st), testutil.At("10:00"))
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Equal(t, 2, st.Len())
}

func TestSweepExpired_OnlyEndedOpenBookings(t *testing.T) {
	ctx := context.Background()
	log := testutil.NewLog().
		Reserve(testutil.At("08:00"), "ana", "P1", "b-ends-now", testutil.At("09:00"), testutil.At("10:00")).
		Reserve(testutil.At("08:01"), "ana", "P1", "b-future", testutil.At("11:00"), testutil.At("12:00")).
		Reserve(testutil.At("08:02"), "ana", "P1", "b-cancelled", testutil.At("08:10"), testutil.At("08:20")).
		Cancel(testutil.At("08:05"), "b-cancelled").
		Reserve(testutil.At("08:03"), "ana", "P1", "b-ended", testutil.At("08:10"), testutil.At("08:20"))
	log.Add(ledger.Event{
		Timestamp: testutil.At("08:04"), RequesterID: "ana", Action: ledger.ActionReserve,
		LotID: "P1", BookingID: "b-open-ended", Success: true,
	})
	st := seed(t, log)

	appended, err := newManager(st).SweepExpired(ctx, snapshot(t, st), testutil.At("10:00"))
	require.NoError(t, err)
	require.Len(t, appended, 1)
	assert.Equal(t, "b-ended", appended[0].BookingID)
}

func TestSweepExpired_SkipsLegacyDayCloseRows(t *testing.T) {
	ctx := context.Background()
	log := testutil.NewLog().
		Reserve(testutil.At("08:00"), "ana", "P1", "b1", testutil.At("09:00"), testutil.At("09:30"))
	log.Add(ledger.Event{Timestamp: testutil.At("09:40"), Action: ledger.ActionDayClose, BookingID: "b1"})
	st := seed(t, log)

	appended, err := newManager(st).SweepExpired(ctx, snapshot(t, st), testutil.At("10:00"))
	require.NoError(t, err)
	assert.Empty(t, appended)
}

func TestCloseDay_ClosesEveryOpenBooking(t *testing.T) {
	ctx := context.Background()
	st := seed(t, testutil.NewLog().
		Reserve(testutil.At("07:00"), "ana", "P1", "b-running", testutil.At("08:00"), testutil.At("20:00")).
		Checkin(testutil.At("08:05"), "b-running").
		Reserve(testutil.At("07:01"), "bob", "P1", "b-later", testutil.At("19:00"), testutil.At("21:00")).
		Reserve(testutil.At("07:02"), "eva", "P2", "b-gone", testutil.At("08:00"), testutil.At("09:00")).
		Close(testutil.At("09:10"), ledger.ActionNoShow, "b-gone").
		Reserve(testutil.At("07:03"), "eva", "P2", "b-cancelled", testutil.At("08:00"), testutil.At("09:00")).
		Cancel(testutil.At("07:30"), "b-cancelled"))
	m := newManager(st)

	now := testutil.At("18:00")
	closed, err := m.CloseDay(ctx, snapshot(t, st), now)
	require.NoError(t, err)
	require.Len(t, closed, 2)

	byBooking := map[string]ledger.Event{}
	for _, ev := range closed {
		byBooking[ev.BookingID] = ev
		assert.Equal(t, ledger.ReasonDayClose, ev.Reason)
		assert.Equal(t, ledger.SourceAdmin, ev.Source)
		assert.True(t, ev.Timestamp.Equal(now))
	}

	running := byBooking["b-running"]
	assert.Equal(t, ledger.ActionExpire, running.Action)
	assert.True(t, running.SlotEnd.Equal(now), "started bookings are cut at the closure instant")

	later := byBooking["b-later"]
	assert.Equal(t, ledger.ActionNoShow, later.Action)
	assert.True(t, later.SlotStart.Equal(testutil.At("19:00")))
	assert.True(t, later.SlotEnd.Equal(testutil.At("21:00")))

	again, err := m.CloseDay(ctx, snapshot(t, st), now)
	require.NoError(t, err)
	assert.Empty(t, again)

	assert.Empty(t, projection.ActiveBookings(snapshot(t, st), now))
}

// failingStore accepts a fixed number of appends, then fails.
type failingStore struct {
	*store.MemoryStore
	remaining int
}

var errDiskFull = errors.New("disk full")

func (s *failingStore) Append(ctx context.Context, ev ledger.Event) error {
	if s.remaining == 0 {
		return &store.IOError{Op: "append event", Err: errDiskFull}
	}
	s.remaining--
	return s.MemoryStore.Append(ctx, ev)
}

func TestSweepExpired_StoreFailureReturnsPartial(t *testing.T) {
	ctx := context.Background()
	mem := seed(t, testutil.NewLog().
		Reserve(testutil.At("07:00"), "ana", "P1", "b1", testutil.At("08:00"), testutil.At("09:00")).
		Reserve(testutil.At("07:01"), "bob", "P1", "b2", testutil.At("08:00"), testutil.At("09:00")))
	st := &failingStore{MemoryStore: mem, remaining: 1}
	m := newManager(st)

	appended, err := m.SweepExpired(ctx, snapshot(t, st), testutil.At("10:00"))
	require.Error(t, err)
	assert.True(t, store.IsIOFailure(err))
	assert.ErrorIs(t, err, errDiskFull)
	assert.Len(t, appended, 1)

	// The next sweep finishes the job.
	st.remaining = 10
	rest, err := m.SweepExpired(ctx, snapshot(t, st), testutil.At("10:00"))
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestCloseDay_KeepsSlotOfFinishedBooking(t *testing.T) {
	ctx := context.Background()
	st := seed(t, testutil.NewLog().
		Reserve(testutil.At("07:00"), "ana", "P1", "b-morning", testutil.At("08:00"), testutil.At("09:00")))
	m := newManager(st)

	closed, err := m.CloseDay(ctx, snapshot(t, st), testutil.At("18:00"))

	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.True(t, closed[0].SlotEnd.Equal(testutil.At("09:00")))
}
