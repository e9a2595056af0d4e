package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/valora-txauth/internal/adapter/cache"
	"github.com/smallbiznis/valora-txauth/internal/adapter/cache/cachetest"
	"github.com/smallbiznis/valora-txauth/internal/metrics"
	"github.com/smallbiznis/valora-txauth/internal/ratelimit"
)

var loginPolicy = ratelimit.Policy{Max: 5, Window: 5 * time.Minute}

func TestCheckDeniesAfterMax(t *testing.T) {
	ctx := context.Background()
	store, _ := cachetest.New(t)
	limiter := ratelimit.NewLimiter(cache.Available(store), nil, nil)

	for i := 1; i <= 5; i++ {
		d := limiter.Check(ctx, "a@example.com", ratelimit.ActionLogin, loginPolicy)
		require.True(t, d.Allowed, "attempt %d", i)
		require.Equal(t, 5-i, d.Remaining)
		require.False(t, d.Degraded)
	}

	d := limiter.Check(ctx, "a@example.com", ratelimit.ActionLogin, loginPolicy)
	require.False(t, d.Allowed)
	require.Zero(t, d.Remaining)
	require.Greater(t, d.ResetInSeconds(), 0)
	require.LessOrEqual(t, d.ResetInSeconds(), 300)
}

// staleStore answers Get with the count seen before a concurrent increment.
type staleStore struct {
	cache.Store
	stale []byte
}

func (s staleStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.stale, true, nil
}

func TestCheckDeniesIncrementPastMax(t *testing.T) {
	ctx := context.Background()
	store, _ := cachetest.New(t)
	key := ratelimit.Key("a@example.com", ratelimit.ActionLogin)
	require.NoError(t, store.Put(ctx, key, []byte("5"), loginPolicy.Window))

	// Both callers read 4; the second one to increment lands on 6.
	limiter := ratelimit.NewLimiter(cache.Available(staleStore{Store: store, stale: []byte("4")}), nil, nil)
	d := limiter.Check(ctx, "a@example.com", ratelimit.ActionLogin, loginPolicy)
	require.False(t, d.Allowed)
	require.Zero(t, d.Remaining)
	require.Greater(t, d.ResetInSeconds(), 0)
}

func TestCheckAllowsAgainAfterWindow(t *testing.T) {
	ctx := context.Background()
	store, srv := cachetest.New(t)
	limiter := ratelimit.NewLimiter(cache.Available(store), nil, nil)

	for i := 0; i < 6; i++ {
		limiter.Check(ctx, "u1", ratelimit.ActionLogin, loginPolicy)
	}
	require.False(t, limiter.Check(ctx, "u1", ratelimit.ActionLogin, loginPolicy).Allowed)

	srv.FastForward(5*time.Minute + time.Second)

	d := limiter.Check(ctx, "u1", ratelimit.ActionLogin, loginPolicy)
	require.True(t, d.Allowed)
	require.Equal(t, 4, d.Remaining)
}

func TestCheckIsolatesIdentifiersAndActions(t *testing.T) {
	ctx := context.Background()
	store, _ := cachetest.New(t)
	limiter := ratelimit.NewLimiter(cache.Available(store), nil, nil)
	tight := ratelimit.Policy{Max: 1, Window: time.Minute}

	require.True(t, limiter.Check(ctx, "u1", ratelimit.ActionLogin, tight).Allowed)
	require.False(t, limiter.Check(ctx, "u1", ratelimit.ActionLogin, tight).Allowed)
	require.True(t, limiter.Check(ctx, "u2", ratelimit.ActionLogin, tight).Allowed)
	require.True(t, limiter.Check(ctx, "u1", ratelimit.ActionOTPIssue, tight).Allowed)
}

func TestCounterNeverPersists(t *testing.T) {
	ctx := context.Background()
	store, _ := cachetest.New(t)
	limiter := ratelimit.NewLimiter(cache.Available(store), nil, nil)

	// Simulate a counter recreated by INCR after the window lapsed.
	_, err := store.Increment(ctx, ratelimit.Key("u1", ratelimit.ActionLogin))
	require.NoError(t, err)

	d := limiter.Check(ctx, "u1", ratelimit.ActionLogin, loginPolicy)
	require.True(t, d.Allowed)
	require.Equal(t, 3, d.Remaining)

	ttl, ok, err := store.TTL(ctx, ratelimit.Key("u1", ratelimit.ActionLogin))
	require.NoError(t, err)
	require.True(t, ok)
	require.LessOrEqual(t, ttl, loginPolicy.Window)
}

func TestDisabledPolicyAlwaysAllows(t *testing.T) {
	limiter := ratelimit.NewLimiter(cache.Unavailable(), nil, nil)
	d := limiter.Check(context.Background(), "u1", ratelimit.ActionLogin, ratelimit.Policy{})
	require.True(t, d.Allowed)
	require.False(t, d.Degraded)
}

func TestStoreOutageFailsOpen(t *testing.T) {
	ctx := context.Background()
	store, srv := cachetest.New(t)
	reg := prometheus.NewRegistry()
	limiter := ratelimit.NewLimiter(cache.Available(store), metrics.NewCollector(reg), nil)
	srv.Close()

	for i := 0; i < 10; i++ {
		d := limiter.Check(ctx, "u1", ratelimit.ActionLogin, loginPolicy)
		require.True(t, d.Allowed)
		require.True(t, d.Degraded)
	}

	absent := ratelimit.NewLimiter(cache.Unavailable(), nil, nil)
	d := absent.Check(ctx, "u1", ratelimit.ActionLogin, loginPolicy)
	require.True(t, d.Allowed)
	require.True(t, d.Degraded)
}

func TestResetInSecondsRoundsUp(t *testing.T) {
	require.Equal(t, 2, ratelimit.Decision{ResetIn: 1500 * time.Millisecond}.ResetInSeconds())
	require.Zero(t, ratelimit.Decision{}.ResetInSeconds())
}
