package ledger

import "fmt"

// Lot is a capacity-limited resource. Capacity comes from configuration and
// is never derived from the log.
type Lot struct {
	ID       string `json:"lot_id" yaml:"id"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Capacity int    `json:"capacity" yaml:"capacity"`
	Active   bool   `json:"active" yaml:"active"`
}

// Validate checks that the lot has an id and a positive capacity.
func (l Lot) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("lot id is required")
	}
	if l.Capacity <= 0 {
		return fmt.Errorf("lot %q: capacity must be positive, got %d", l.ID, l.Capacity)
	}
	return nil
}

// FindLot returns the lot with the given id.
func FindLot(lots []Lot, id string) (Lot, bool) {
	for _, l := range lots {
		if l.ID == id {
			return l, true
		}
	}
	return Lot{}, false
}
