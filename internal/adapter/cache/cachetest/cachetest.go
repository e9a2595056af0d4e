// Package cachetest starts an in-process Redis for tests.
package cachetest

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/smallbiznis/valora-txauth/internal/adapter/cache"
)

// New returns a RedisStore wired to a fresh miniredis instance. The server is
// closed with the test; closing it earlier simulates an outage.
func New(t testing.TB) (*cache.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:       srv.Addr(),
		MaxRetries: -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	return cache.NewRedisStore(client, 0), srv
}
