package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/lotledger/internal/ledger"
)

// Scenario is one reservation conformance scenario.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Day anchors "HH:MM" instants. Defaults to DefaultDay.
	Day string `yaml:"day,omitempty"`

	Lots       []ledger.Lot `yaml:"lots"`
	Steps      []Step       `yaml:"steps"`
	Assertions []Assertion  `yaml:"assertions,omitempty"`
}

// Step is one operation at one instant.
type Step struct {
	Op string `yaml:"op"`
	At string `yaml:"at"`

	Requester string `yaml:"requester,omitempty"`
	Lot       string `yaml:"lot,omitempty"`
	Reason    string `yaml:"reason,omitempty"`
	Start     string `yaml:"start,omitempty"`
	End       string `yaml:"end,omitempty"`

	// Booking is a name given with As, or a literal booking id.
	Booking string `yaml:"booking,omitempty"`

	// As names the booking a reserve step creates.
	As string `yaml:"as,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect checks the result of one step. Unset fields are not checked.
type Expect struct {
	Outcome string `yaml:"outcome,omitempty"`
	Reason  string `yaml:"reason,omitempty"`
	Free    *int   `yaml:"free,omitempty"`

	// Closed is the number of bookings a sweep or close_day closed.
	Closed *int `yaml:"closed,omitempty"`

	// Occupied maps lot id to occupied count for occupancy steps.
	Occupied map[string]int `yaml:"occupied,omitempty"`
}

// Assertion checks the log after all steps ran.
type Assertion struct {
	Type    string   `yaml:"type"`
	Action  string   `yaml:"action,omitempty"`
	Count   int      `yaml:"count,omitempty"`
	Actions []string `yaml:"actions,omitempty"`
	Booking string   `yaml:"booking,omitempty"`
	State   string   `yaml:"state,omitempty"`
}

// Step operations.
const (
	OpReserve   = "reserve"
	OpCancel    = "cancel"
	OpCheckin   = "checkin"
	OpSweep     = "sweep"
	OpCloseDay  = "close_day"
	OpOccupancy = "occupancy"
)

// Assertion types.
const (
	AssertLogCount     = "log_count"
	AssertLogOrder     = "log_order"
	AssertBookingState = "booking_state"
	AssertReplayOK     = "replay_ok"
)

// DefaultDay anchors scenarios that set no day.
const DefaultDay = "2025-03-10"

// LoadScenario reads and validates a scenario file.
// Unknown fields are rejected so that typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Lots) == 0 {
		return fmt.Errorf("lots list is required and must be non-empty")
	}
	for i, lot := range s.Lots {
		if err := lot.Validate(); err != nil {
			return fmt.Errorf("lots[%d]: %w", i, err)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if _, err := s.day(); err != nil {
		return err
	}

	for i, step := range s.Steps {
		if step.At == "" {
			return fmt.Errorf("steps[%d]: at is required", i)
		}
		if _, err := s.instant(step.At); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		switch step.Op {
		case OpReserve:
			if step.Start == "" || step.End == "" {
				return fmt.Errorf("steps[%d]: start and end are required for reserve", i)
			}
		case OpCancel:
		case OpCheckin:
			if step.Booking == "" {
				return fmt.Errorf("steps[%d]: booking is required for checkin", i)
			}
		case OpSweep, OpCloseDay, OpOccupancy:
		case "":
			return fmt.Errorf("steps[%d]: op is required", i)
		default:
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		if step.As != "" && step.Op != OpReserve {
			return fmt.Errorf("steps[%d]: as is only valid on reserve", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertLogCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for log_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for log_count", index)
		}
	case AssertLogOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for log_order", index)
		}
	case AssertBookingState:
		if a.Booking == "" || a.State == "" {
			return fmt.Errorf("assertions[%d]: booking and state are required for booking_state", index)
		}
	case AssertReplayOK:
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func (s *Scenario) day() (time.Time, error) {
	raw := s.Day
	if raw == "" {
		raw = DefaultDay
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("day %q: %w", s.Day, err)
	}
	return d, nil
}

// instant resolves "HH:MM" against the scenario day, or parses a full
// instant.
func (s *Scenario) instant(raw string) (time.Time, error) {
	if t, err := time.Parse("15:04", raw); err == nil {
		day, err := s.day()
		if err != nil {
			return time.Time{}, err
		}
		return day.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute), nil
	}
	return ledger.ParseInstant(raw)
}
