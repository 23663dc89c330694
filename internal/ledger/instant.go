package ledger

import (
	"fmt"
	"strings"
	"time"
)

// InstantLayout is the fixed-width UTC layout used when writing instants.
// Fixed width keeps the textual form sortable.
const InstantLayout = "2006-01-02T15:04:05.000000000Z"

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// FormatInstant renders t in UTC using InstantLayout.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(InstantLayout)
}

// ParseInstant parses the instant formats found in current and legacy logs.
// Values without a zone are read as UTC.
func ParseInstant(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("parse instant: empty value")
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse instant %q: unrecognized format", raw)
}
