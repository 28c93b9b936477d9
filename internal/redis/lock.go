package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("date lock not acquired")
)

// Locker serializes admission decisions and status transitions for one
// calendar date. All writers touching the same date must go through it;
// two holders of the same date key never run concurrently.
type Locker interface {
	WithDateLock(ctx context.Context, day time.Time, fn func(ctx context.Context) error) error
}

type redisDateLocker struct {
	client        *redis.Client
	ttl           time.Duration
	acquireBudget time.Duration
	retryInterval time.Duration
}

// NewRedisDateLocker creates a locker backed by a per-date Redis key.
// Acquisition is retried at retryInterval until acquireBudget is spent,
// after which ErrLockNotAcquired is returned.
func NewRedisDateLocker(client *redis.Client, ttl, acquireBudget, retryInterval time.Duration) Locker {
	return &redisDateLocker{
		client:        client,
		ttl:           ttl,
		acquireBudget: acquireBudget,
		retryInterval: retryInterval,
	}
}

func (l *redisDateLocker) WithDateLock(ctx context.Context, day time.Time, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:date:%s", day.Format("2006-01-02"))
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisDateLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.acquireBudget)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire date lock: %w", err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisDateLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release date lock: %w", err)
	}
	return nil
}
