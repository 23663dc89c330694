// Package lots loads lot configuration: which lots exist, their capacity
// and whether they accept reservations.
//
// Capacity is authoritative here and never derived from the event log.
// Sources are re-read on every call so that an edited file takes effect
// without a restart.
package lots

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/roach88/lotledger/internal/ledger"
)

// Source provides the current lot configuration.
type Source interface {
	Lots(ctx context.Context) ([]ledger.Lot, error)
}

// Static is a fixed in-memory configuration.
type Static []ledger.Lot

// Lots returns a copy of s.
func (s Static) Lots(ctx context.Context) ([]ledger.Lot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]ledger.Lot, len(s))
	copy(out, s)
	return out, nil
}

// Open returns the file source for path, chosen by extension: .yaml and .yml
// are YAML, anything else is the CSV format.
func Open(path string) Source {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return &YAMLFile{Path: path}
	default:
		return &CSVFile{Path: path}
	}
}

// dedupe drops lots that fail validation or repeat an earlier id, reporting
// each through skip.
func dedupe(in []ledger.Lot, skip func(lot ledger.Lot, err error)) []ledger.Lot {
	seen := map[string]bool{}
	out := make([]ledger.Lot, 0, len(in))
	for _, lot := range in {
		if err := lot.Validate(); err != nil {
			skip(lot, err)
			continue
		}
		if seen[lot.ID] {
			skip(lot, fmt.Errorf("duplicate lot %q", lot.ID))
			continue
		}
		seen[lot.ID] = true
		out = append(out, lot)
	}
	return out
}
