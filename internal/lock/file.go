package lock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/roach88/lotledger/internal/ids"
)

// ErrLost is returned by a release whose lock file was removed or replaced
// by another writer while it was held.
var ErrLost = errors.New("lock: lock file no longer held by this holder")

// FileLocker is an advisory lock backed by an exclusively created file.
// The file holds the holder's pid and a random token; a holder only removes
// the file while it still carries its own token.
//
// StaleAfter > 0 enables stale-lock breaking: a lock file whose modification
// time is older than StaleAfter is removed and acquisition retried. This is
// off by default, in which case a crashed holder blocks writers until their
// own Timeout and the file must be removed by an operator.
type FileLocker struct {
	Path       string
	Timeout    time.Duration
	Retry      time.Duration
	StaleAfter time.Duration
	Logger     *slog.Logger
	// Tokens generates holder tokens. Defaults to ids.UUIDv7.
	Tokens ids.Generator
}

// NewFileLocker creates a FileLocker with default timeout and retry interval.
func NewFileLocker(path string) *FileLocker {
	return &FileLocker{Path: path, Timeout: DefaultTimeout, Retry: DefaultRetry}
}

// Acquire creates the lock file, waiting up to Timeout while another holder
// owns it.
func (l *FileLocker) Acquire(ctx context.Context) (Release, error) {
	timeout := orDefault(l.Timeout, DefaultTimeout)
	retry := orDefault(l.Retry, DefaultRetry)
	deadline := time.Now().Add(timeout)
	owner := l.ownerLine()

	for {
		f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := f.Write(owner)
			if cerr := f.Close(); werr == nil {
				werr = cerr
			}
			if werr != nil {
				_ = os.Remove(l.Path)
				return nil, fmt.Errorf("acquire lock %s: write owner: %w", l.Path, werr)
			}
			return l.release(owner), nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("acquire lock %s: %w", l.Path, err)
		}

		if l.StaleAfter > 0 && l.breakStale() {
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("acquire lock %s after %s: %w", l.Path, timeout, ErrTimeout)
		}
		if err := sleep(ctx, min(retry, remaining)); err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", l.Path, err)
		}
	}
}

// ownerLine is the content this holder writes into the lock file.
func (l *FileLocker) ownerLine() []byte {
	var gen ids.Generator = ids.UUIDv7{}
	if l.Tokens != nil {
		gen = l.Tokens
	}
	return fmt.Appendf(nil, "%d %s\n", os.Getpid(), gen.New())
}

// breakStale removes the lock file if it is older than StaleAfter and still
// carries the owner seen when its age was checked. Another waiter may have
// broken the same file and taken the lock in between; that fresh file is
// left alone. Reports whether a file was removed.
func (l *FileLocker) breakStale() bool {
	seen, err := os.ReadFile(l.Path)
	if err != nil {
		return false
	}
	info, err := os.Stat(l.Path)
	if err != nil {
		return false
	}
	age := time.Since(info.ModTime())
	if age <= l.StaleAfter {
		return false
	}
	if !l.removeIfHeldBy(seen) {
		return false
	}
	l.logger().Warn("broke stale lock",
		"path", l.Path,
		"owner", string(bytes.TrimSpace(seen)),
		"age", age.Round(time.Millisecond),
		"stale_after", l.StaleAfter,
	)
	return true
}

// removeIfHeldBy removes the lock file only if it still contains owner.
func (l *FileLocker) removeIfHeldBy(owner []byte) bool {
	if !l.holds(owner) {
		return false
	}
	return os.Remove(l.Path) == nil
}

// holds reports whether the lock file currently contains owner.
func (l *FileLocker) holds(owner []byte) bool {
	current, err := os.ReadFile(l.Path)
	return err == nil && bytes.Equal(current, owner)
}

func (l *FileLocker) release(owner []byte) Release {
	var once sync.Once
	var err error
	return func() error {
		once.Do(func() {
			if !l.holds(owner) {
				err = fmt.Errorf("release lock %s: %w", l.Path, ErrLost)
				return
			}
			if rmErr := os.Remove(l.Path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				err = fmt.Errorf("release lock %s: %w", l.Path, rmErr)
			}
		})
		return err
	}
}

func (l *FileLocker) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}
