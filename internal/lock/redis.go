package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/lotledger/internal/ids"
)

// DefaultRedisTTL bounds how long a crashed holder can keep the Redis lock.
const DefaultRedisTTL = 30 * time.Second

// releaseScript deletes the key only if it still holds our token, so a
// holder whose TTL lapsed cannot release somebody else's lock.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// RedisLocker holds the advisory lock as a Redis key set with NX and a TTL.
// The TTL doubles as stale-lock expiry.
type RedisLocker struct {
	client  redis.Cmdable
	key     string
	ttl     time.Duration
	timeout time.Duration
	retry   time.Duration
	tokens  ids.Generator
}

// RedisOption configures a RedisLocker.
type RedisOption func(*RedisLocker)

// WithTTL sets the key expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLocker) { l.ttl = ttl }
}

// WithWait sets the acquisition timeout and retry interval.
func WithWait(timeout, retry time.Duration) RedisOption {
	return func(l *RedisLocker) {
		l.timeout = timeout
		l.retry = retry
	}
}

// WithTokens overrides the generator used for holder tokens.
func WithTokens(gen ids.Generator) RedisOption {
	return func(l *RedisLocker) { l.tokens = gen }
}

// NewRedisLocker creates a RedisLocker for key.
func NewRedisLocker(client redis.Cmdable, key string, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client:  client,
		key:     key,
		ttl:     DefaultRedisTTL,
		timeout: DefaultTimeout,
		retry:   DefaultRetry,
		tokens:  ids.UUIDv7{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire sets the lock key, waiting up to the configured timeout.
func (l *RedisLocker) Acquire(ctx context.Context) (Release, error) {
	timeout := orDefault(l.timeout, DefaultTimeout)
	retry := orDefault(l.retry, DefaultRetry)
	deadline := time.Now().Add(timeout)
	token := l.tokens.New()

	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire redis lock %s: %w", l.key, err)
		}
		if ok {
			return l.release(token), nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("acquire redis lock %s after %s: %w", l.key, timeout, ErrTimeout)
		}
		if err := sleep(ctx, min(retry, remaining)); err != nil {
			return nil, fmt.Errorf("acquire redis lock %s: %w", l.key, err)
		}
	}
}

func (l *RedisLocker) release(token string) Release {
	var once sync.Once
	var err error
	return func() error {
		once.Do(func() {
			// Release must succeed even if the caller's context was cancelled.
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if evalErr := l.client.Eval(ctx, releaseScript, []string{l.key}, token).Err(); evalErr != nil {
				err = fmt.Errorf("release redis lock %s: %w", l.key, evalErr)
			}
		})
		return err
	}
}
