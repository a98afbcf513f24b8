package lock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func newTestLocker(t *testing.T, opts ...Option) *RedisLocker {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	l, err := NewRedisLocker(client, append([]Option{WithKeyPrefix("billing:lock:test:" + t.Name() + ":")}, opts...)...)
	if err != nil {
		t.Fatalf("new locker: %v", err)
	}
	return l
}

func TestNewRedisLockerNilClient(t *testing.T) {
	if _, err := NewRedisLocker(nil); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	l := newTestLocker(t, WithWait(100*time.Millisecond))
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "t-1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := l.Lock(ctx, "t-1"); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
	unlock()

	again, err := l.Lock(ctx, "t-1")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()
}

func TestRedisLockerExpiredTokenIsNotReleasedByOldHolder(t *testing.T) {
	l := newTestLocker(t, WithTTL(50*time.Millisecond), WithWait(time.Second))
	ctx := context.Background()

	stale, err := l.Lock(ctx, "t-2")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	holder := newTestLocker(t, WithWait(time.Second))
	fresh, err := holder.Lock(ctx, "t-2")
	if err != nil {
		t.Fatalf("lock after expiry: %v", err)
	}
	stale()

	short := newTestLocker(t, WithWait(50*time.Millisecond))
	if _, err := short.Lock(ctx, "t-2"); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("stale release freed a lock it no longer owned: %v", err)
	}
	fresh()
}
