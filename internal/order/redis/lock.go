package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-storefront/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var ErrLockNotAcquired = errors.New("order is locked by another worker")

// unlockScript deletes the key only while it still holds the caller's owner token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Redis struct {
	Client     *redis.Client
	Logger     *logger.Logger
	LockTTL    time.Duration
	RetryDelay time.Duration
	MaxWait    time.Duration
}

func NewRedis(client *redis.Client, lockTTL time.Duration, log *logger.Logger) *Redis {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Redis{
		Client:     client,
		Logger:     log,
		LockTTL:    lockTTL,
		RetryDelay: 100 * time.Millisecond,
		MaxWait:    5 * time.Second,
	}
}

func orderLockKey(orderID int64) string {
	return fmt.Sprintf("order_lock:%d", orderID)
}

// LockOrder tries once to take the lock for owner.
func (r *Redis) LockOrder(ctx context.Context, orderID int64, owner string) (bool, error) {
	return r.Client.SetNX(ctx, orderLockKey(orderID), owner, r.LockTTL).Result()
}

// UnlockOrder releases the lock if owner still holds it.
func (r *Redis) UnlockOrder(ctx context.Context, orderID int64, owner string) error {
	return unlockScript.Run(ctx, r.Client, []string{orderLockKey(orderID)}, owner).Err()
}

func (r *Redis) IsOrderLocked(ctx context.Context, orderID int64) (bool, error) {
	n, err := r.Client.Exists(ctx, orderLockKey(orderID)).Result()
	return n > 0, err
}

// WithOrderLock waits up to MaxWait for the order lock, runs fn and releases the lock.
func (r *Redis) WithOrderLock(ctx context.Context, orderID int64, fn func(ctx context.Context) error) error {
	owner := uuid.NewString()
	deadline := time.Now().Add(r.MaxWait)

	for {
		ok, err := r.LockOrder(ctx, orderID, owner)
		if err != nil {
			return fmt.Errorf("acquire order lock: %w", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.RetryDelay):
		}
	}

	defer func() {
		// release even when the request context is already cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.UnlockOrder(releaseCtx, orderID, owner); err != nil && r.Logger != nil {
			r.Logger.Error("REDIS", fmt.Sprintf("failed to release lock for order %d: %v", orderID, err))
		}
	}()

	return fn(ctx)
}
