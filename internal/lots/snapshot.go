package lots

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/roach88/lotledger/internal/ledger"
)

// SnapshotHeader is the column set of the lot snapshot file.
var SnapshotHeader = []string{
	"lot_id", "nombre", "capacidad", "ocupados", "libres",
	"activo", "apertura", "cierre", "permite_espera",
}

// WriteSnapshot writes the lots with their current occupancy to path in the
// headered CSV layout CSVFile reads. The snapshot is informational: it is
// replaced atomically and never read back as occupancy.
func WriteSnapshot(path string, lots []ledger.Lot, occupied map[string]int) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	_ = w.Write(SnapshotHeader)
	for _, lot := range lots {
		occ := occupied[lot.ID]
		_ = w.Write([]string{
			lot.ID,
			lot.Name,
			strconv.Itoa(lot.Capacity),
			strconv.Itoa(occ),
			strconv.Itoa(max(lot.Capacity-occ, 0)),
			boolDigit(lot.Active),
			"",
			"",
			"1",
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func boolDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
