package store

import (
	"io"
	"log/slog"
	"time"

	"github.com/roach88/lotledger/internal/ledger"
	"github.com/roach88/lotledger/internal/testutil"
)

func quietOptions() Options {
	return Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// reserveEvent builds a complete reserve event with every column populated.
func reserveEvent(id string, at time.Time) ledger.Event {
	return ledger.Event{
		ID:          id,
		Timestamp:   at,
		RequesterID: "ana@uvg.edu.gt",
		Action:      ledger.ActionReserve,
		Reason:      "clase, laboratorio",
		LotID:       "P1",
		SpotID:      "A-12",
		BookingID:   "b-" + id,
		Success:     true,
		FreeAfter:   4,
		Capacity:    5,
		Source:      ledger.SourceCLI,
		AppVersion:  "1.2.0",
		ErrorCode:   ledger.CodeNone,
		SlotStart:   ledger.TimePtr(testutil.At("08:00")),
		SlotEnd:     ledger.TimePtr(testutil.At("10:00")),
	}
}
