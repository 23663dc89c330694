package lots

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/roach88/lotledger/internal/ledger"
)

// CSVFile reads lots from a CSV file in either of two layouts:
//
//	P1,40,12                     headerless: lot_id,capacity,occupied
//	lot_id,nombre,capacidad,...  with a header naming the columns
//
// With a header, the columns lot_id, capacidad (or capacity), nombre (or
// name) and activo (or active) are used; others such as ocupados are
// ignored since occupancy is derived from the log. Malformed lines are
// skipped. A missing file yields no lots.
type CSVFile struct {
	Path   string
	Logger *slog.Logger
}

var lotColumns = map[string]string{
	"lot_id":    "id",
	"id":        "id",
	"nombre":    "name",
	"name":      "name",
	"capacidad": "capacity",
	"capacity":  "capacity",
	"activo":    "active",
	"active":    "active",
}

// Lots reads the file.
func (f *CSVFile) Lots(ctx context.Context) ([]ledger.Lot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return []ledger.Lot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open lots %s: %w", f.Path, err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var (
		parsed []ledger.Lot
		index  map[string]int
		line   int
	)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			f.logger().Warn("skip malformed lot line", "path", f.Path, "line", line, "error", err)
			continue
		}
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		if line == 1 && isHeader(rec) {
			index = headerIndex(rec)
			continue
		}

		var (
			lot ledger.Lot
			ok  bool
		)
		if index != nil {
			lot, ok = fromHeaderRow(index, rec)
		} else {
			lot, ok = fromLegacyRow(rec)
		}
		if !ok {
			f.logger().Warn("skip malformed lot line", "path", f.Path, "line", line)
			continue
		}
		parsed = append(parsed, lot)
	}

	return dedupe(parsed, func(lot ledger.Lot, err error) {
		f.logger().Warn("skip invalid lot", "path", f.Path, "lot_id", lot.ID, "error", err)
	}), nil
}

func (f *CSVFile) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

func isHeader(rec []string) bool {
	for _, h := range rec {
		if strings.EqualFold(strings.TrimSpace(h), "lot_id") {
			return true
		}
	}
	return false
}

func headerIndex(rec []string) map[string]int {
	index := map[string]int{}
	for i, h := range rec {
		if field, ok := lotColumns[strings.ToLower(strings.TrimSpace(h))]; ok {
			if _, dup := index[field]; !dup {
				index[field] = i
			}
		}
	}
	return index
}

func fromLegacyRow(rec []string) (ledger.Lot, bool) {
	if len(rec) != 3 {
		return ledger.Lot{}, false
	}
	capacity, err := strconv.Atoi(strings.TrimSpace(rec[1]))
	if err != nil {
		return ledger.Lot{}, false
	}
	// occupied must still be an integer for the line to count
	if _, err := strconv.Atoi(strings.TrimSpace(rec[2])); err != nil {
		return ledger.Lot{}, false
	}
	id := ledger.NormalizeText(rec[0])
	return ledger.Lot{ID: id, Name: id, Capacity: capacity, Active: true}, true
}

func fromHeaderRow(index map[string]int, rec []string) (ledger.Lot, bool) {
	get := func(field string) string {
		i, ok := index[field]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	capacity, err := strconv.Atoi(get("capacity"))
	if err != nil {
		return ledger.Lot{}, false
	}
	active, ok := parseActive(get("active"))
	if !ok {
		return ledger.Lot{}, false
	}
	lot := ledger.Lot{
		ID:       ledger.NormalizeText(get("id")),
		Name:     ledger.NormalizeText(get("name")),
		Capacity: capacity,
		Active:   active,
	}
	if lot.Name == "" {
		lot.Name = lot.ID
	}
	return lot, true
}

// parseActive reads the activo column. Empty means active.
func parseActive(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "", "1", "true", "si", "sí", "yes":
		return true, true
	case "0", "false", "no":
		return false, true
	default:
		return false, false
	}
}
