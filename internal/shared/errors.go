package shared

import "errors"

// ErrLockNotAcquired indicates another worker holds the lock.
var ErrLockNotAcquired = errors.New("lock not acquired")
