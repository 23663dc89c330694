package engine

import (
	"errors"
	"fmt"
)

// RequestError reports a request the engine refuses to evaluate. No event
// is written for it.
type RequestError struct {
	// Code identifies the error category.
	Code RequestErrorCode

	// Message is a human-readable description.
	Message string

	// LotID or BookingID identify the subject, when relevant.
	LotID     string
	BookingID string
}

// RequestErrorCode categorizes request errors.
type RequestErrorCode string

const (
	// ErrCodeInvalidSlot indicates start is not before end.
	ErrCodeInvalidSlot RequestErrorCode = "INVALID_SLOT"

	// ErrCodeMissingRequester indicates an empty requester identity.
	ErrCodeMissingRequester RequestErrorCode = "MISSING_REQUESTER"

	// ErrCodeUnknownLot indicates the lot is not configured.
	ErrCodeUnknownLot RequestErrorCode = "UNKNOWN_LOT"

	// ErrCodeInactiveLot indicates the lot does not accept reservations.
	ErrCodeInactiveLot RequestErrorCode = "INACTIVE_LOT"

	// ErrCodeUnknownBooking indicates no booking has the given id.
	ErrCodeUnknownBooking RequestErrorCode = "UNKNOWN_BOOKING"
)

// Error implements the error interface.
func (e *RequestError) Error() string {
	switch {
	case e.LotID != "":
		return fmt.Sprintf("%s: %s (lot=%s)", e.Code, e.Message, e.LotID)
	case e.BookingID != "":
		return fmt.Sprintf("%s: %s (booking=%s)", e.Code, e.Message, e.BookingID)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsRequestError returns true if err is (or wraps) a *RequestError.
func IsRequestError(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}

// RequestErrorCodeOf returns the code of a wrapped *RequestError, or "".
func RequestErrorCodeOf(err error) RequestErrorCode {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

func invalidSlot() *RequestError {
	return &RequestError{Code: ErrCodeInvalidSlot, Message: "slot start must be before slot end"}
}

func missingRequester() *RequestError {
	return &RequestError{Code: ErrCodeMissingRequester, Message: "requester is required"}
}

func unknownLot(lotID string) *RequestError {
	return &RequestError{Code: ErrCodeUnknownLot, Message: "lot is not configured", LotID: lotID}
}

func inactiveLot(lotID string) *RequestError {
	return &RequestError{Code: ErrCodeInactiveLot, Message: "lot is not accepting reservations", LotID: lotID}
}

func unknownBooking(bookingID string) *RequestError {
	return &RequestError{Code: ErrCodeUnknownBooking, Message: "no such booking", BookingID: bookingID}
}
