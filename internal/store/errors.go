package store

import (
	"errors"
	"fmt"

	"github.com/roach88/lotledger/internal/lock"
)

// ErrLockTimeout reports that exclusive write access was not obtained in
// time. It is transient: the caller may retry. No event was written.
var ErrLockTimeout = lock.ErrTimeout

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// IOError reports a storage failure. Op names the failing step
// ("append", "read", "ensure schema", ...).
type IOError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *IOError) Unwrap() error {
	return e.Err
}

// IsLockTimeout reports whether err is (or wraps) a lock timeout.
func IsLockTimeout(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}

// IsIOFailure reports whether err is (or wraps) an *IOError.
func IsIOFailure(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}
