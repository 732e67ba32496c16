package lock

import (
	"context"
	"sync"
	"time"

	"github.com/mirkobrombin/go-holdlock/v1/syncbus"
)

type lockState struct {
	timer  *time.Timer
	notify chan struct{}
}

// InMemory implements Locker using local memory. Lock and unlock events are
// published on a syncbus Bus so other components can observe them.
type InMemory struct {
	mu    sync.Mutex
	bus   syncbus.Bus
	locks map[string]*lockState
}

// NewInMemory returns a new in-memory locker that uses bus to publish events.
func NewInMemory(bus syncbus.Bus) *InMemory {
	if bus == nil {
		bus = syncbus.NewInMemoryBus()
	}
	return &InMemory{
		bus:   bus,
		locks: make(map[string]*lockState),
	}
}

// TryLock attempts to obtain the lock without waiting. It returns true on success.
func (l *InMemory) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	if _, ok := l.locks[key]; ok {
		l.mu.Unlock()
		return false, nil
	}
	st := &lockState{notify: make(chan struct{})}
	if ttl > 0 {
		st.timer = time.AfterFunc(ttl, func() {
			l.expire(key, st)
		})
	}
	l.locks[key] = st
	l.mu.Unlock()
	_ = l.bus.Publish(ctx, "lock:"+key)
	return true, nil
}

// Acquire blocks until the lock is obtained or the context is cancelled.
func (l *InMemory) Acquire(ctx context.Context, key string, ttl time.Duration) error {
	for {
		ok, err := l.TryLock(ctx, key, ttl)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		l.mu.Lock()
		st, held := l.locks[key]
		l.mu.Unlock()
		if !held {
			continue
		}
		select {
		case <-st.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Release frees the lock for the given key. It returns ErrNotHeld when the
// key is not locked, including after its TTL expired.
func (l *InMemory) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	st, ok := l.locks[key]
	if !ok {
		l.mu.Unlock()
		return ErrNotHeld
	}
	l.drop(key, st)
	l.mu.Unlock()
	_ = l.bus.Publish(ctx, "unlock:"+key)
	return nil
}

func (l *InMemory) expire(key string, st *lockState) {
	l.mu.Lock()
	if l.locks[key] != st {
		l.mu.Unlock()
		return
	}
	l.drop(key, st)
	l.mu.Unlock()
	_ = l.bus.Publish(context.Background(), "unlock:"+key)
}

// drop must be called with l.mu held.
func (l *InMemory) drop(key string, st *lockState) {
	if st.timer != nil {
		st.timer.Stop()
	}
	close(st.notify)
	delete(l.locks, key)
}
