package ledger

import "strings"

// Column names of the log, in canonical order.
const (
	ColEventID     = "event_id"
	ColTimestamp   = "timestamp"
	ColRequesterID = "requester_id"
	ColAction      = "action"
	ColReason      = "reason"
	ColLotID       = "lot_id"
	ColSpotID      = "spot_id"
	ColBookingID   = "booking_id"
	ColSuccess     = "success"
	ColFreeAfter   = "free_after"
	ColCapacity    = "capacity"
	ColSource      = "source"
	ColAppVersion  = "app_version"
	ColErrorCode   = "error_code"
	ColSlotStart   = "slot_start"
	ColSlotEnd     = "slot_end"
)

// Columns is the current field set of the log.
var Columns = []string{
	ColEventID,
	ColTimestamp,
	ColRequesterID,
	ColAction,
	ColReason,
	ColLotID,
	ColSpotID,
	ColBookingID,
	ColSuccess,
	ColFreeAfter,
	ColCapacity,
	ColSource,
	ColAppVersion,
	ColErrorCode,
	ColSlotStart,
	ColSlotEnd,
}

var columnAliases = map[string]string{
	"user_email":       ColRequesterID,
	"user_id":          ColRequesterID,
	"accion":           ColAction,
	"motivo":           ColReason,
	"free_spots_after": ColFreeAfter,
}

// ResolveColumn maps a header name (current or legacy) to its canonical
// column. ok is false for headers lotledger does not know.
func ResolveColumn(header string) (string, bool) {
	h := strings.ToLower(strings.TrimSpace(header))
	if alias, ok := columnAliases[h]; ok {
		return alias, true
	}
	for _, c := range Columns {
		if c == h {
			return c, true
		}
	}
	return "", false
}

// MissingColumns returns the canonical columns not covered by header, in
// canonical order.
func MissingColumns(header []string) []string {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		if c, ok := ResolveColumn(h); ok {
			have[c] = true
		}
	}
	var missing []string
	for _, c := range Columns {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	return missing
}
