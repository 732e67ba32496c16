package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/mirkobrombin/go-holdlock/v1/syncbus"
)

var delScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// pollInterval bounds how long Acquire waits between attempts when no unlock
// event arrives, which covers TTL expiry and events published before the
// waiter subscribed.
const pollInterval = 50 * time.Millisecond

// Redis implements Locker using a Redis backend. Each acquisition stores a
// random token so a locker only ever deletes keys it set itself.
type Redis struct {
	client *redis.Client
	bus    syncbus.Bus

	mu     sync.Mutex
	tokens map[string]string
}

// NewRedis returns a new Redis locker using the provided client.
func NewRedis(client *redis.Client, bus syncbus.Bus) *Redis {
	if bus == nil {
		bus = syncbus.NewInMemoryBus()
	}
	return &Redis{client: client, bus: bus, tokens: make(map[string]string)}
}

// TryLock attempts to obtain the lock without waiting.
func (r *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		r.mu.Lock()
		r.tokens[key] = token
		r.mu.Unlock()
	}
	return ok, nil
}

// Acquire blocks until the lock is obtained or the context is cancelled.
func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) error {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	ch, err := r.bus.Subscribe(subCtx, "unlock:"+key)
	if err != nil {
		return err
	}
	defer func() { _ = r.bus.Unsubscribe(context.Background(), "unlock:"+key, ch) }()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		ok, err := r.TryLock(ctx, key, ttl)
		if err != nil {
			return err
		}
		if ok {
			_ = r.bus.Publish(ctx, "lock:"+key)
			return nil
		}
		select {
		case <-ch:
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Release frees the lock for the given key. It returns ErrNotHeld when this
// locker never acquired key or the key expired and was taken by someone else.
func (r *Redis) Release(ctx context.Context, key string) error {
	r.mu.Lock()
	token, ok := r.tokens[key]
	r.mu.Unlock()
	if !ok {
		return ErrNotHeld
	}
	n, err := delScript.Run(ctx, r.client, []string{key}, token).Int64()
	if errors.Is(err, redis.Nil) {
		err = nil
	}
	if err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.tokens, key)
	r.mu.Unlock()
	if n == 0 {
		return ErrNotHeld
	}
	_ = r.bus.Publish(ctx, "unlock:"+key)
	return nil
}
