package ledger

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText trims surrounding whitespace and converts s to Unicode NFC,
// so that identifiers typed on different systems compare equal.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
