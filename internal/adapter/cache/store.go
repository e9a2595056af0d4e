package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps every failure that originates in the backing store.
// Callers decide per operation whether it fails open or closed.
var ErrUnavailable = errors.New("cache: store unavailable")

// Store is a shared key-value store with per-key expiry. Every operation is
// atomic for a single key; nothing spans keys.
type Store interface {
	// Put overwrites key unconditionally. A non-positive ttl stores without expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the value and false when the key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Delete reports whether a key was removed.
	Delete(ctx context.Context, key string) (bool, error)
	// Increment creates the key at 1 without expiry or adds 1 atomically.
	Increment(ctx context.Context, key string) (int64, error)
	// TTL returns the remaining lifetime and false when the key is absent or persistent.
	TTL(ctx context.Context, key string) (time.Duration, bool, error)
	// CountPrefix counts keys starting with prefix.
	CountPrefix(ctx context.Context, prefix string) (int, error)
	// DeletePrefix removes keys starting with prefix and returns how many went.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Optional is a store that may be absent, for example when the server could not
// reach it at boot. Call sites branch on Store's second return value.
type Optional struct {
	store Store
}

// Available wraps a reachable store.
func Available(store Store) Optional {
	return Optional{store: store}
}

// Unavailable returns the absent capability.
func Unavailable() Optional {
	return Optional{}
}

// Store returns the underlying store and whether it is present.
func (o Optional) Store() (Store, bool) {
	return o.store, o.store != nil
}

// Present reports whether a store is configured.
func (o Optional) Present() bool {
	return o.store != nil
}
