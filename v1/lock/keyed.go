package lock

import (
	"context"
	"time"
)

// Keyed adapts one key of a Locker to the Mutex interface.
type Keyed struct {
	locker Locker
	key    string
	ttl    time.Duration
}

// KeyedOption configures a Keyed mutex.
type KeyedOption func(*Keyed)

// WithTTL makes every acquisition expire after ttl. A zero ttl, the default,
// holds the lock until it is released.
func WithTTL(ttl time.Duration) KeyedOption {
	return func(k *Keyed) {
		k.ttl = ttl
	}
}

// NewKeyed returns a Mutex guarding key on locker.
func NewKeyed(locker Locker, key string, opts ...KeyedOption) *Keyed {
	k := &Keyed{locker: locker, key: key}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Key returns the guarded key.
func (k *Keyed) Key() string {
	return k.key
}

// Lock implements Mutex.Lock.
func (k *Keyed) Lock(ctx context.Context) error {
	if k == nil || k.locker == nil {
		return ErrUninitialized
	}
	return k.locker.Acquire(ctx, k.key, k.ttl)
}

// Unlock implements Mutex.Unlock.
func (k *Keyed) Unlock(ctx context.Context) error {
	if k == nil || k.locker == nil {
		return ErrUninitialized
	}
	return k.locker.Release(ctx, k.key)
}
