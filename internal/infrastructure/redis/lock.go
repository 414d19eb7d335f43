package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired is returned when the lock could not be claimed
// within the retry budget.
var ErrLockNotAcquired = errors.New("lock not acquired")

// Release and extend must check ownership, otherwise a worker that
// stalled past its TTL could release a lock another worker now holds.
var (
	releaseLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	extendLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// DistributedLock serializes work on a single session across worker
// instances. The postback consumer takes one per session so concurrent
// redeliveries of the same message cannot race.
type DistributedLock struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
	held   bool
}

// NewDistributedLock creates a lock for the given key. The owner token is
// random per lock instance, so only the claimer can release or extend.
func NewDistributedLock(client *redis.Client, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    fmt.Sprintf("lock:%s", key),
		owner:  uuid.New().String(),
		ttl:    ttl,
	}
}

// Acquire claims the lock if free. SET NX makes the claim atomic.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	l.held = ok
	return ok, nil
}

// AcquireWithRetry polls for the lock up to maxRetries times.
func (l *DistributedLock) AcquireWithRetry(ctx context.Context, maxRetries int, retryDelay time.Duration) error {
	for i := 0; i < maxRetries; i++ {
		acquired, err := l.Acquire(ctx)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return ErrLockNotAcquired
}

// Extend pushes the expiry out for long-running deliveries.
func (l *DistributedLock) Extend(ctx context.Context, additionalTTL time.Duration) error {
	if !l.held {
		return ErrLockNotAcquired
	}

	result, err := extendLockScript.Run(ctx, l.client, []string{l.key}, l.owner, additionalTTL.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", l.key, err)
	}
	if val, ok := result.(int64); !ok || val == 0 {
		return errors.New("lock expired before extend")
	}
	return nil
}

// Release frees the lock if this instance still owns it.
func (l *DistributedLock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}

	result, err := releaseLockScript.Run(ctx, l.client, []string{l.key}, l.owner).Result()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	l.held = false
	if val, ok := result.(int64); !ok || val == 0 {
		return errors.New("lock expired before release")
	}
	return nil
}

// IsAcquired reports whether this instance holds the lock.
func (l *DistributedLock) IsAcquired() bool {
	return l.held
}
