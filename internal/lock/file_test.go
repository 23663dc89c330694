package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lotledger/internal/ids"
)

func newTestFileLocker(t *testing.T) *FileLocker {
	t.Helper()
	return &FileLocker{
		Path:    filepath.Join(t.TempDir(), ".events.lock"),
		Timeout: 200 * time.Millisecond,
		Retry:   10 * time.Millisecond,
	}
}

func TestFileLocker_AcquireRelease(t *testing.T) {
	l := newTestFileLocker(t)

	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, l.Path)

	require.NoError(t, release())
	assert.NoFileExists(t, l.Path)
}

func TestFileLocker_ReleaseIdempotent(t *testing.T) {
	l := newTestFileLocker(t)

	release, err := l.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, release())
	require.NoError(t, release())
}

func TestFileLocker_TimesOutWhileHeld(t *testing.T) {
	l := newTestFileLocker(t)
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	start := time.Now()
	_, err = l.Acquire(context.Background())

	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), l.Timeout)
}

func TestFileLocker_WaitsForRelease(t *testing.T) {
	l := newTestFileLocker(t)
	l.Timeout = 2 * time.Second
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = release()
	}()

	second, err := l.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, second())
}

func TestFileLocker_ContextCancelled(t *testing.T) {
	l := newTestFileLocker(t)
	l.Timeout = 5 * time.Second
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestFileLocker_StaleLockNotBrokenByDefault(t *testing.T) {
	l := newTestFileLocker(t)
	require.NoError(t, os.WriteFile(l.Path, []byte("999999\n"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(l.Path, old, old))

	_, err := l.Acquire(context.Background())

	assert.ErrorIs(t, err, ErrTimeout)
	assert.FileExists(t, l.Path)
}

func TestFileLocker_BreaksStaleLock(t *testing.T) {
	l := newTestFileLocker(t)
	l.StaleAfter = time.Minute
	require.NoError(t, os.WriteFile(l.Path, []byte("999999\n"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(l.Path, old, old))

	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, release())
}

func TestFileLocker_FreshLockNotBroken(t *testing.T) {
	l := newTestFileLocker(t)
	l.StaleAfter = time.Hour
	other, err := l.Acquire(context.Background())
	require.NoError(t, err)
	defer other()

	_, err = l.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestFileLocker_MissingDirectory(t *testing.T) {
	l := &FileLocker{Path: filepath.Join(t.TempDir(), "missing", "x.lock")}

	_, err := l.Acquire(context.Background())

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestNewFileLocker_Defaults(t *testing.T) {
	l := NewFileLocker("x.lock")
	assert.Equal(t, DefaultTimeout, l.Timeout)
	assert.Equal(t, DefaultRetry, l.Retry)
	assert.Zero(t, l.StaleAfter)
}

func TestFileLocker_WritesOwnerLine(t *testing.T) {
	l := newTestFileLocker(t)
	l.Tokens = ids.NewSequence("tok")

	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	data, err := os.ReadFile(l.Path)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d tok-0001\n", os.Getpid()), string(data))
}

func TestFileLocker_ReleaseKeepsAnotherHoldersFile(t *testing.T) {
	l := newTestFileLocker(t)
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)

	// The lock was broken and taken over while held.
	require.NoError(t, os.WriteFile(l.Path, []byte("4242 someone-else\n"), 0o644))

	err = release()
	assert.ErrorIs(t, err, ErrLost)
	assert.FileExists(t, l.Path)
	assert.ErrorIs(t, release(), ErrLost)
}

func TestFileLocker_ReleaseAfterLockFileRemoved(t *testing.T) {
	l := newTestFileLocker(t)
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, os.Remove(l.Path))

	assert.ErrorIs(t, release(), ErrLost)
}

func TestFileLocker_StaleBreakSparesReplacedFile(t *testing.T) {
	l := newTestFileLocker(t)
	l.StaleAfter = time.Minute
	stale := []byte("999999 old-holder\n")

	// Another waiter broke the stale file and acquired the lock after this
	// waiter read it.
	fresh := []byte("4242 new-holder\n")
	require.NoError(t, os.WriteFile(l.Path, fresh, 0o644))

	assert.False(t, l.removeIfHeldBy(stale))
	data, err := os.ReadFile(l.Path)
	require.NoError(t, err)
	assert.Equal(t, fresh, data)

	assert.True(t, l.removeIfHeldBy(fresh))
	assert.NoFileExists(t, l.Path)
}

func TestFileLocker_TwoWaitersBreakStaleLockOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".events.lock")
	require.NoError(t, os.WriteFile(path, []byte("999999 old-holder\n"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	newWaiter := func() *FileLocker {
		return &FileLocker{Path: path, Timeout: time.Second, Retry: 5 * time.Millisecond, StaleAfter: time.Minute}
	}
	first, err := newWaiter().Acquire(context.Background())
	require.NoError(t, err)

	// The fresh lock is not stale for the second waiter.
	second := newWaiter()
	second.Timeout = 50 * time.Millisecond
	_, err = second.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)

	require.NoError(t, first())
	assert.NoFileExists(t, path)
}
