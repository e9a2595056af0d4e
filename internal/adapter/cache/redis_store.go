package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 200

// RedisStore implements Store backed by Redis.
type RedisStore struct {
	client  redis.UniversalClient
	timeout time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore constructs a Redis-backed store. Each call is bounded by timeout
// when it is positive.
func NewRedisStore(client redis.UniversalClient, timeout time.Duration) *RedisStore {
	return &RedisStore{client: client, timeout: timeout}
}

func (s *RedisStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

// Put stores value under key with ttl.
func (s *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("persist key", err)
	}
	return nil
}

// Get loads the raw value.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	bytes, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, unavailable("load key", err)
	}
	return bytes, true, nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	n, err := s.client.Del(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, unavailable("delete key", err)
	}
	return n > 0, nil
}

// Increment runs INCR on key.
func (s *RedisStore) Increment(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, unavailable("increment key", err)
	}
	return n, nil
}

// TTL returns the remaining lifetime of key.
func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	d, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, false, unavailable("ttl key", err)
	}
	// -1 is persistent, -2 is missing.
	if d < 0 {
		return 0, false, nil
	}
	return d, true, nil
}

// CountPrefix counts keys matching prefix using SCAN.
func (s *RedisStore) CountPrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.scan(ctx, prefix)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// DeletePrefix removes keys matching prefix.
func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.scan(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, unavailable("delete prefix", err)
	}
	return int(n), nil
}

// globEscaper makes a prefix match itself literally in a SCAN pattern.
var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func (s *RedisStore) scan(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, globEscaper.Replace(prefix)+"*", scanBatch).Result()
		if err != nil {
			return nil, unavailable("scan prefix", err)
		}
		for _, key := range batch {
			if strings.HasPrefix(key, prefix) {
				keys = append(keys, key)
			}
		}
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}
