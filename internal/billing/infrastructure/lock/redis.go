package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "billing:lock:"
	defaultTTL       = 30 * time.Second
	defaultWait      = 10 * time.Second
)

// ErrNotAcquired is returned when the lock stays held past the wait budget.
var ErrNotAcquired = errors.New("lock: not acquired")

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Option configures the Redis locker.
type Option func(*RedisLocker)

// WithTTL sets the lock expiry.
func WithTTL(ttl time.Duration) Option {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithWait bounds how long Lock retries a held key.
func WithWait(wait time.Duration) Option {
	return func(l *RedisLocker) {
		if wait > 0 {
			l.wait = wait
		}
	}
}

// WithKeyPrefix sets the key namespace.
func WithKeyPrefix(prefix string) Option {
	return func(l *RedisLocker) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// RedisLocker serializes invoice generation across processes with SET NX PX.
type RedisLocker struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker constructs a locker on a shared client.
func NewRedisLocker(client redis.Cmdable, opts ...Option) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis locker: nil client")
	}
	l := &RedisLocker{
		client: client,
		prefix: defaultKeyPrefix,
		ttl:    defaultTTL,
		wait:   defaultWait,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// Lock acquires key, retrying with exponential backoff until the wait budget
// or ctx runs out. The returned func releases the lock if it is still ours.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	fullKey := l.prefix + key
	token := uuid.NewString()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = l.wait

	err := backoff.Retry(func() error {
		ok, err := l.client.SetNX(ctx, fullKey, token, l.ttl).Result()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("redis lock %s: %w", key, err))
		}
		if !ok {
			return ErrNotAcquired
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	return func() {
		// release must run even when the caller's ctx is already canceled
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{fullKey}, token).Err()
	}, nil
}
