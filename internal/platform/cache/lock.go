package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const (
	defaultLockExpiry = 30 * time.Second
	lockTries         = 5
	lockRetryDelay    = 200 * time.Millisecond
)

// Locker serialises critical sections across processes with a Redis mutex.
type Locker struct {
	rs     *redsync.Redsync
	expiry time.Duration
}

// NewLocker builds a locker over client. expiry <= 0 uses the default.
func NewLocker(client *redis.Client, expiry time.Duration) *Locker {
	if expiry <= 0 {
		expiry = defaultLockExpiry
	}
	return &Locker{rs: redsync.New(goredis.NewPool(client)), expiry: expiry}
}

// WithLock runs fn while holding key. Contention surfaces as shared.ErrLockNotAcquired.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if l == nil || l.rs == nil {
		return fn(ctx)
	}
	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(lockTries),
		redsync.WithRetryDelay(lockRetryDelay),
	)
	if err := mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			return fmt.Errorf("%w: %s", shared.ErrLockNotAcquired, key)
		}
		return fmt.Errorf("platform/cache: lock %s: %w", key, err)
	}
	defer func() {
		// a fresh context so cancellation of ctx does not leave the key held until expiry
		unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = mutex.UnlockContext(unlockCtx)
	}()
	return fn(ctx)
}
