package worker

import (
	"context"
	"runtime"
	"time"
)

// Sleeper waits for d. An error aborts the worker with ErrTiming.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep implements Sleeper.
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Spawner starts fn concurrently. When Spawn returns an error, fn must not
// have been started.
type Spawner interface {
	Spawn(fn func()) error
}

// SpawnerFunc adapts a function to Spawner.
type SpawnerFunc func(fn func()) error

// Spawn implements Spawner.
func (f SpawnerFunc) Spawn(fn func()) error {
	return f(fn)
}

// threadSpawner runs fn on a new goroutine locked to its own OS thread. The
// thread is never unlocked, so the runtime terminates it when fn returns.
type threadSpawner struct{}

func (threadSpawner) Spawn(fn func()) error {
	go func() {
		runtime.LockOSThread()
		fn()
	}()
	return nil
}
