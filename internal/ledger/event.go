package ledger

import (
	"errors"
	"fmt"
	"time"
)

// Event is one immutable entry of the reservation log.
//
// SlotStart and SlotEnd are nil for events that carry no interval, such as a
// cancel marker written when the requester had nothing to cancel.
type Event struct {
	ID          string     `json:"event_id"`
	Timestamp   time.Time  `json:"timestamp"`
	RequesterID string     `json:"requester_id"`
	Action      Action     `json:"action"`
	Reason      string     `json:"reason,omitempty"`
	LotID       string     `json:"lot_id"`
	SpotID      string     `json:"spot_id,omitempty"`
	BookingID   string     `json:"booking_id,omitempty"`
	Success     bool       `json:"success"`
	FreeAfter   int        `json:"free_after"`
	Capacity    int        `json:"capacity"`
	Source      string     `json:"source,omitempty"`
	AppVersion  string     `json:"app_version,omitempty"`
	ErrorCode   ErrorCode  `json:"error_code,omitempty"`
	SlotStart   *time.Time `json:"slot_start,omitempty"`
	SlotEnd     *time.Time `json:"slot_end,omitempty"`
}

// ErrInvalidEvent is wrapped by Validate failures.
var ErrInvalidEvent = errors.New("invalid event")

// Validate checks the fields every appended event must carry.
func (e Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: event_id is required", ErrInvalidEvent)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidEvent)
	}
	if !e.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidEvent, e.Action)
	}
	if (e.SlotStart == nil) != (e.SlotEnd == nil) {
		return fmt.Errorf("%w: slot_start and slot_end must be set together", ErrInvalidEvent)
	}
	if e.SlotStart != nil && !e.SlotStart.Before(*e.SlotEnd) {
		return fmt.Errorf("%w: slot_start must be before slot_end", ErrInvalidEvent)
	}
	return nil
}

// HasSlot reports whether both slot bounds are present.
func (e Event) HasSlot() bool {
	return e.SlotStart != nil && e.SlotEnd != nil
}

// Is reports whether e is a successful event of the given action.
func (e Event) Is(a Action) bool {
	return e.Success && e.Action == a
}

// TimePtr returns a pointer to the UTC form of t.
func TimePtr(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}
