package lock

import "context"

// Local is an in-process Mutex. Unlike sync.Mutex, unlocking a Local that is
// not held reports ErrNotHeld instead of crashing, and a nil or zero Local
// reports ErrUninitialized.
type Local struct {
	sem chan struct{}
}

// NewLocal returns an unlocked Local.
func NewLocal() *Local {
	return &Local{sem: make(chan struct{}, 1)}
}

// Lock implements Mutex.Lock.
func (l *Local) Lock(ctx context.Context) error {
	if l == nil || l.sem == nil {
		return ErrUninitialized
	}
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryLock obtains the lock if it is free.
func (l *Local) TryLock() bool {
	if l == nil || l.sem == nil {
		return false
	}
	select {
	case l.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Unlock implements Mutex.Unlock.
func (l *Local) Unlock(context.Context) error {
	if l == nil || l.sem == nil {
		return ErrUninitialized
	}
	select {
	case <-l.sem:
		return nil
	default:
		return ErrNotHeld
	}
}

// Locked reports whether the lock is currently held.
func (l *Local) Locked() bool {
	if l == nil || l.sem == nil {
		return false
	}
	return len(l.sem) == 1
}
