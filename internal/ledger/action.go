package ledger

import "strings"

// Action identifies what an event records.
type Action string

const (
	ActionReserve  Action = "reserve"
	ActionCancel   Action = "cancel"
	ActionCheckin  Action = "checkin"
	ActionExpire   Action = "expire"
	ActionNoShow   Action = "no_show"
	ActionDayClose Action = "day_close"
	ActionWaitlist Action = "waitlist"
)

// Actions lists every known action in declaration order.
var Actions = []Action{
	ActionReserve,
	ActionCancel,
	ActionCheckin,
	ActionExpire,
	ActionNoShow,
	ActionDayClose,
	ActionWaitlist,
}

var legacyActions = map[string]Action{
	"reserva":       ActionReserve,
	"cancelacion":   ActionCancel,
	"expiracion":    ActionExpire,
	"cierrejornada": ActionDayClose,
	"lista_espera":  ActionWaitlist,
}

// ParseAction maps a raw action value onto an Action.
// Unknown values are returned verbatim with ok=false so that callers can keep
// the row without giving it meaning.
func ParseAction(raw string) (Action, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, a := range Actions {
		if string(a) == s {
			return a, true
		}
	}
	if a, ok := legacyActions[s]; ok {
		return a, true
	}
	return Action(strings.TrimSpace(raw)), false
}

// Terminal reports whether the action closes a booking for good
// (expire, no_show or day_close).
func (a Action) Terminal() bool {
	return a == ActionExpire || a == ActionNoShow || a == ActionDayClose
}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// ErrorCode classifies a non-admission or a failed request.
type ErrorCode string

const (
	CodeNone             ErrorCode = ""
	CodeOverlap          ErrorCode = "OVERLAP"
	CodeNoCapacity       ErrorCode = "NO_CAPACITY"
	CodeNoActiveBooking  ErrorCode = "NO_ACTIVE_BOOKING"
	CodeDuplicateCheckin ErrorCode = "DUPLICATE_CHECKIN"
)

var legacyCodes = map[string]ErrorCode{
	"TRASLAPE":           CodeOverlap,
	"SIN_CUPO":           CodeNoCapacity,
	"SIN_RESERVA_ACTIVA": CodeNoActiveBooking,
}

// ParseErrorCode normalizes a raw error_code column value.
func ParseErrorCode(raw string) ErrorCode {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if c, ok := legacyCodes[s]; ok {
		return c
	}
	return ErrorCode(s)
}

// Event sources recorded in the source column.
const (
	SourceUI     = "ui"
	SourceCLI    = "cli"
	SourceSystem = "system"
	SourceAdmin  = "admin"
)

// ReasonDayClose is the reason recorded on events written by an end-of-day closure.
const ReasonDayClose = "day_close"
