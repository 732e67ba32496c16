package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotHeld is returned when unlocking a lock the caller does not hold.
	ErrNotHeld = errors.New("lock: not held")
	// ErrUninitialized is returned by operations on a nil or zero lock.
	ErrUninitialized = errors.New("lock: uninitialized")
)

// Mutex is a mutual-exclusion primitive. Lock blocks until the lock is held
// or ctx is done.
type Mutex interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// Locker hands out named locks.
type Locker interface {
	// TryLock attempts to obtain the lock without waiting.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Acquire blocks until the lock is obtained or the context is cancelled.
	Acquire(ctx context.Context, key string, ttl time.Duration) error
	// Release frees the lock for the given key.
	Release(ctx context.Context, key string) error
}
