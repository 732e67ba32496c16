package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"

	"github.com/mirkobrombin/go-holdlock/v1/syncbus"
)

func newRedisLocker(t *testing.T) (*Redis, *miniredis.Miniredis, syncbus.Bus, context.Context) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bus := syncbus.NewInMemoryBus()
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return NewRedis(client, bus), mr, bus, context.Background()
}

func TestRedisTryLockAcquireReleaseAndBus(t *testing.T) {
	l, _, bus, ctx := newRedisLocker(t)

	lockCh, err := bus.Subscribe(ctx, "lock:k")
	if err != nil {
		t.Fatalf("subscribe lock: %v", err)
	}
	unlockCh, err := bus.Subscribe(ctx, "unlock:k")
	if err != nil {
		t.Fatalf("subscribe unlock: %v", err)
	}

	if err := l.Acquire(ctx, "k", time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	select {
	case <-lockCh:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for lock publish")
	}
	if err := l.Release(ctx, "k"); err != nil {
		t.Fatalf("release: %v", err)
	}
	select {
	case <-unlockCh:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for unlock publish")
	}
	l.mu.Lock()
	if _, ok := l.tokens["k"]; ok {
		t.Fatal("token not cleaned up on release")
	}
	l.mu.Unlock()

	ok, err := l.TryLock(ctx, "k", time.Second)
	if err != nil || !ok {
		t.Fatalf("trylock: %v ok %v", err, ok)
	}
	if ok, err := l.TryLock(ctx, "k", time.Second); err != nil || ok {
		t.Fatalf("expected lock held, ok %v err %v", ok, err)
	}
	if err := l.Release(ctx, "k"); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestRedisReleaseNotHeld(t *testing.T) {
	l, _, _, ctx := newRedisLocker(t)
	if err := l.Release(ctx, "k"); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("expected ErrNotHeld, got %v", err)
	}
}

func TestRedisReleaseAfterExpiry(t *testing.T) {
	l, mr, _, ctx := newRedisLocker(t)
	if ok, err := l.TryLock(ctx, "k", time.Second); err != nil || !ok {
		t.Fatalf("trylock: %v ok %v", err, ok)
	}
	mr.FastForward(2 * time.Second)
	if err := l.Release(ctx, "k"); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("expected ErrNotHeld, got %v", err)
	}
}

func TestRedisAcquireTimeout(t *testing.T) {
	l1, _, bus, ctx := newRedisLocker(t)
	l2 := NewRedis(l1.client, bus)

	if ok, err := l1.TryLock(ctx, "k", 0); err != nil || !ok {
		t.Fatalf("initial trylock: %v ok %v", err, ok)
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Millisecond)
	defer cancel()
	start := time.Now()
	if err := l2.Acquire(cctx, "k", 0); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Fatal("acquire did not respect context timeout")
	}
}

func TestRedisAcquireWakesOnRelease(t *testing.T) {
	l1, _, bus, ctx := newRedisLocker(t)
	l2 := NewRedis(l1.client, bus)
	if ok, err := l1.TryLock(ctx, "k", 0); err != nil || !ok {
		t.Fatalf("initial trylock: %v ok %v", err, ok)
	}

	acquired := make(chan error, 1)
	go func() {
		acquired <- l2.Acquire(ctx, "k", 0)
	}()
	time.Sleep(10 * time.Millisecond)
	if err := l1.Release(ctx, "k"); err != nil {
		t.Fatalf("release: %v", err)
	}
	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("acquire not woken by release")
	}
	if err := l2.Release(ctx, "k"); err != nil {
		t.Fatalf("release: %v", err)
	}
}
