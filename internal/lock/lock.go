// Package lock implements the single named advisory lock that serializes
// writers of the event log.
//
// The lock is cooperative: it protects the log only if every writer honours
// it. Two implementations exist:
//
//   - FileLocker: an exclusive-create lock file next to the log. The file's
//     absence means the lock is free. Suitable for one process or a few
//     cooperating processes on one filesystem.
//   - RedisLocker: the same named lock held as a Redis key with a TTL, for
//     writers on different hosts that share the log volume.
//
// Acquisition waits at most a bounded timeout (default 4s), retrying every
// retry interval (default 80ms), and fails with ErrTimeout otherwise. The
// release function is idempotent and must always be called, including when
// the protected operation fails.
package lock

import (
	"context"
	"errors"
	"time"
)

// Defaults for lock acquisition.
const (
	DefaultTimeout = 4 * time.Second
	DefaultRetry   = 80 * time.Millisecond
)

// ErrTimeout is returned when the lock could not be acquired in time.
var ErrTimeout = errors.New("lock: timed out waiting for exclusive access")

// Release gives the lock back. Calling it more than once is a no-op.
type Release func() error

// Locker acquires the advisory lock.
type Locker interface {
	Acquire(ctx context.Context) (Release, error)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
