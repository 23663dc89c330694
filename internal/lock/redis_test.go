package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lotledger/internal/ids"
)

const testKey = "lotledger:events:lock"

func TestRedisLocker_AcquireRelease(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewRedisLocker(db, testKey, WithTokens(ids.NewSequence("tok")))

	mock.ExpectSetNX(testKey, "tok-0001", DefaultRedisTTL).SetVal(true)
	mock.ExpectEval(releaseScript, []string{testKey}, "tok-0001").SetVal(int64(1))

	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, release())
	require.NoError(t, release()) // second call is a no-op

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLocker_RetriesUntilFree(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewRedisLocker(db, testKey,
		WithTokens(ids.NewSequence("tok")),
		WithTTL(5*time.Second),
		WithWait(time.Second, time.Millisecond),
	)

	mock.ExpectSetNX(testKey, "tok-0001", 5*time.Second).SetVal(false)
	mock.ExpectSetNX(testKey, "tok-0001", 5*time.Second).SetVal(true)

	_, err := l.Acquire(context.Background())
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLocker_Timeout(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewRedisLocker(db, testKey,
		WithTokens(ids.NewSequence("tok")),
		WithWait(time.Nanosecond, time.Nanosecond),
	)

	mock.ExpectSetNX(testKey, "tok-0001", DefaultRedisTTL).SetVal(false)

	_, err := l.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLocker_ConnectionError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewRedisLocker(db, testKey, WithTokens(ids.NewSequence("tok")))

	mock.ExpectSetNX(testKey, "tok-0001", DefaultRedisTTL).SetErr(errors.New("connection refused"))

	_, err := l.Acquire(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRedisLocker_ReleaseError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewRedisLocker(db, testKey, WithTokens(ids.NewSequence("tok")))

	mock.ExpectSetNX(testKey, "tok-0001", DefaultRedisTTL).SetVal(true)
	mock.ExpectEval(releaseScript, []string{testKey}, "tok-0001").SetErr(errors.New("broken pipe"))

	release, err := l.Acquire(context.Background())
	require.NoError(t, err)

	err = release()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "release redis lock")
}
