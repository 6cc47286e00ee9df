package cache

import (
	"context"
	"time"
)

// Store is a small key-value surface used for resolved-path caching and
// cross-replica locks. Backed by Redis when configured, by process memory
// otherwise.
type Store interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, expiration time.Duration)
	Delete(ctx context.Context, key string)
	// SetNX stores the value only if the key is absent; returns true when the
	// caller won. This is the lock primitive.
	SetNX(ctx context.Context, key, value string, expiration time.Duration) bool
}

// AcquireLock spins on SetNX until the lock is won or the wait window runs
// out. The returned release function is safe to call once.
func AcquireLock(ctx context.Context, store Store, key string, ttl, wait time.Duration) (func(), bool) {
	deadline := time.Now().Add(wait)
	for {
		if store.SetNX(ctx, key, "1", ttl) {
			return func() { store.Delete(ctx, key) }, true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return func() {}, false
		}
		time.Sleep(25 * time.Millisecond)
	}
}
