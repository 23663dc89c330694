package store

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/lotledger/internal/ledger"
)

// fieldValue renders one canonical column of ev as text. Instants use the
// fixed-width UTC layout so that rows sort the same textually and by time.
func fieldValue(ev ledger.Event, col string) string {
	switch col {
	case ledger.ColEventID:
		return ev.ID
	case ledger.ColTimestamp:
		return ledger.FormatInstant(ev.Timestamp)
	case ledger.ColRequesterID:
		return ev.RequesterID
	case ledger.ColAction:
		return string(ev.Action)
	case ledger.ColReason:
		return ev.Reason
	case ledger.ColLotID:
		return ev.LotID
	case ledger.ColSpotID:
		return ev.SpotID
	case ledger.ColBookingID:
		return ev.BookingID
	case ledger.ColSuccess:
		if ev.Success {
			return "1"
		}
		return "0"
	case ledger.ColFreeAfter:
		return strconv.Itoa(ev.FreeAfter)
	case ledger.ColCapacity:
		return strconv.Itoa(ev.Capacity)
	case ledger.ColSource:
		return ev.Source
	case ledger.ColAppVersion:
		return ev.AppVersion
	case ledger.ColErrorCode:
		return string(ev.ErrorCode)
	case ledger.ColSlotStart:
		return formatOptionalInstant(ev.SlotStart)
	case ledger.ColSlotEnd:
		return formatOptionalInstant(ev.SlotEnd)
	default:
		return ""
	}
}

func formatOptionalInstant(t *time.Time) string {
	if t == nil {
		return ""
	}
	return ledger.FormatInstant(*t)
}

// encodeRecord lays ev out in the order of header. Header entries lotledger
// does not know are left empty.
func encodeRecord(ev ledger.Event, header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if col, ok := ledger.ResolveColumn(h); ok {
			out[i] = fieldValue(ev, col)
		}
	}
	return out
}

// layout maps canonical columns to positions within a physical header.
type layout map[string]int

func newLayout(header []string) layout {
	l := make(layout, len(header))
	for i, h := range header {
		col, ok := ledger.ResolveColumn(h)
		if !ok {
			continue
		}
		// first occurrence wins
		if _, dup := l[col]; !dup {
			l[col] = i
		}
	}
	return l
}

func (l layout) value(rec []string, col string) string {
	i, ok := l[col]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// decodeRecord builds an event from one physical row. It never fails:
// unparsable values are replaced by their defaults and their columns are
// reported in defaulted. row is the 1-based data row number and names rows
// that carry no event_id.
func decodeRecord(l layout, rec []string, row int) (ev ledger.Event, defaulted []string) {
	get := func(col string) string { return l.value(rec, col) }

	ev.ID = get(ledger.ColEventID)
	if ev.ID == "" {
		ev.ID = fmt.Sprintf("row-%06d", row)
		defaulted = append(defaulted, ledger.ColEventID)
	}

	if raw := get(ledger.ColTimestamp); raw != "" {
		ts, err := ledger.ParseInstant(raw)
		if err != nil {
			defaulted = append(defaulted, ledger.ColTimestamp)
		} else {
			ev.Timestamp = ts
		}
	} else {
		defaulted = append(defaulted, ledger.ColTimestamp)
	}

	ev.RequesterID = ledger.NormalizeText(get(ledger.ColRequesterID))
	ev.Action, _ = ledger.ParseAction(get(ledger.ColAction))
	ev.Reason = ledger.NormalizeText(get(ledger.ColReason))
	ev.LotID = ledger.NormalizeText(get(ledger.ColLotID))
	ev.SpotID = get(ledger.ColSpotID)
	ev.BookingID = get(ledger.ColBookingID)
	ev.Source = get(ledger.ColSource)
	ev.AppVersion = get(ledger.ColAppVersion)
	ev.ErrorCode = ledger.ParseErrorCode(get(ledger.ColErrorCode))

	var ok bool
	if ev.Success, ok = parseBool(get(ledger.ColSuccess)); !ok {
		defaulted = append(defaulted, ledger.ColSuccess)
	}
	if ev.FreeAfter, ok = parseInt(get(ledger.ColFreeAfter)); !ok {
		defaulted = append(defaulted, ledger.ColFreeAfter)
	}
	if ev.Capacity, ok = parseInt(get(ledger.ColCapacity)); !ok {
		defaulted = append(defaulted, ledger.ColCapacity)
	}
	if ev.SlotStart, ok = parseOptionalInstant(get(ledger.ColSlotStart)); !ok {
		defaulted = append(defaulted, ledger.ColSlotStart)
	}
	if ev.SlotEnd, ok = parseOptionalInstant(get(ledger.ColSlotEnd)); !ok {
		defaulted = append(defaulted, ledger.ColSlotEnd)
	}
	return ev, defaulted
}

// parseBool accepts the spellings of success seen in old logs. Empty is false.
func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "", "0", "0.0", "false", "f", "no", "n":
		return false, true
	case "1", "1.0", "true", "t", "yes", "y", "si", "sí":
		return true, true
	default:
		return false, false
	}
}

// parseInt accepts integers and integral floats ("3.0" from spreadsheet
// round-trips). Empty is 0.
func parseInt(s string) (int, bool) {
	if s == "" {
		return 0, true
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func parseOptionalInstant(s string) (*time.Time, bool) {
	if s == "" {
		return nil, true
	}
	t, err := ledger.ParseInstant(s)
	if err != nil {
		return nil, false
	}
	return &t, true
}
