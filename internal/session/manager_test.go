package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/valora-txauth/internal/adapter/cache"
	"github.com/smallbiznis/valora-txauth/internal/adapter/cache/cachetest"
	"github.com/smallbiznis/valora-txauth/internal/domain"
	"github.com/smallbiznis/valora-txauth/internal/session"
)

func newManager(t *testing.T) (*session.Manager, cache.Store, func(time.Duration)) {
	t.Helper()
	store, srv := cachetest.New(t)
	return session.NewManager(cache.Available(store), 15*time.Minute), store, srv.FastForward
}

func TestOpenReplacesPreviousPayload(t *testing.T) {
	ctx := context.Background()
	mgr, _, _ := newManager(t)

	_, err := mgr.Open(ctx, "42", domain.Session{Name: "Asha", Email: "a@example.com", Phone: "111", PendingTransactionID: "TXN1"}, 0)
	require.NoError(t, err)
	_, err = mgr.Open(ctx, "42", domain.Session{Name: "Ravi", Email: "r@example.com"}, 0)
	require.NoError(t, err)

	got, err := mgr.Read(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, "Ravi", got.Name)
	require.Equal(t, "r@example.com", got.Email)
	require.Empty(t, got.Phone)
	require.Empty(t, got.PendingTransactionID)
}

func TestReadMissingAndExpired(t *testing.T) {
	ctx := context.Background()
	mgr, _, forward := newManager(t)

	_, err := mgr.Read(ctx, "nobody")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = mgr.Open(ctx, "7", domain.Session{Name: "x"}, time.Minute)
	require.NoError(t, err)
	forward(61 * time.Second)

	_, err = mgr.Read(ctx, "7")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestCloseReportsRemoval(t *testing.T) {
	ctx := context.Background()
	mgr, _, _ := newManager(t)

	_, err := mgr.Open(ctx, "7", domain.Session{Name: "x"}, 0)
	require.NoError(t, err)

	removed, err := mgr.Close(ctx, "7")
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = mgr.Close(ctx, "7")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestTouchExtendsWithoutChangingContent(t *testing.T) {
	ctx := context.Background()
	mgr, store, forward := newManager(t)

	_, err := mgr.Open(ctx, "7", domain.Session{Name: "x", IPAddress: "10.0.0.1"}, time.Minute)
	require.NoError(t, err)
	forward(50 * time.Second)

	_, err = mgr.Touch(ctx, "7", 10*time.Minute)
	require.NoError(t, err)

	ttl, ok, err := store.TTL(ctx, session.Key("7"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Greater(t, ttl, 9*time.Minute)

	got, err := mgr.Read(ctx, "7")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", got.IPAddress)

	_, err = mgr.Touch(ctx, "missing", time.Minute)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestPendingTransactionLifecycle(t *testing.T) {
	ctx := context.Background()
	mgr, _, _ := newManager(t)

	_, err := mgr.Open(ctx, "7", domain.Session{Name: "x"}, 0)
	require.NoError(t, err)

	sess, err := mgr.SetPendingTransaction(ctx, "7", "TXN99", 0)
	require.NoError(t, err)
	require.Equal(t, "TXN99", sess.PendingTransactionID)

	got, err := mgr.Read(ctx, "7")
	require.NoError(t, err)
	require.True(t, got.HasPendingTransaction())

	require.NoError(t, mgr.ClearPendingTransaction(ctx, "7", "TXN1", 0))
	got, err = mgr.Read(ctx, "7")
	require.NoError(t, err)
	require.Equal(t, "TXN99", got.PendingTransactionID)

	require.NoError(t, mgr.ClearPendingTransaction(ctx, "7", "TXN99", 0))
	got, err = mgr.Read(ctx, "7")
	require.NoError(t, err)
	require.False(t, got.HasPendingTransaction())
	require.Equal(t, "x", got.Name)

	require.NoError(t, mgr.ClearPendingTransaction(ctx, "missing", "TXN99", 0))
}

func TestPendingTransactionKeepsLongerLifetime(t *testing.T) {
	ctx := context.Background()
	mgr, store, forward := newManager(t)

	_, err := mgr.Open(ctx, "7", domain.Session{Name: "x"}, 24*time.Hour)
	require.NoError(t, err)
	forward(time.Hour)

	_, err = mgr.SetPendingTransaction(ctx, "7", "TXN5", 15*time.Minute)
	require.NoError(t, err)
	require.NoError(t, mgr.ClearPendingTransaction(ctx, "7", "TXN5", 15*time.Minute))

	ttl, ok, err := store.TTL(ctx, session.Key("7"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Greater(t, ttl, 22*time.Hour)
	require.LessOrEqual(t, ttl, 23*time.Hour)

	got, err := mgr.Read(ctx, "7")
	require.NoError(t, err)
	require.False(t, got.HasPendingTransaction())

	// A short session is still extended to the requested lifetime.
	_, err = mgr.Open(ctx, "8", domain.Session{Name: "y"}, time.Minute)
	require.NoError(t, err)
	_, err = mgr.SetPendingTransaction(ctx, "8", "TXN6", 24*time.Hour)
	require.NoError(t, err)
	ttl, _, err = store.TTL(ctx, session.Key("8"))
	require.NoError(t, err)
	require.Greater(t, ttl, 23*time.Hour)
}

func TestCountActive(t *testing.T) {
	ctx := context.Background()
	mgr, _, _ := newManager(t)

	for _, id := range []string{"1", "2", "3"} {
		_, err := mgr.Open(ctx, id, domain.Session{Name: id}, 0)
		require.NoError(t, err)
	}
	n, err := mgr.CountActive(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestStoreOutageFailsClosed(t *testing.T) {
	ctx := context.Background()
	store, srv := cachetest.New(t)
	mgr := session.NewManager(cache.Available(store), time.Minute)
	srv.Close()

	_, err := mgr.Read(ctx, "7")
	require.ErrorIs(t, err, domain.ErrSessionUnavailable)

	_, err = mgr.Open(ctx, "7", domain.Session{}, 0)
	require.ErrorIs(t, err, domain.ErrSessionUnavailable)

	absent := session.NewManager(cache.Unavailable(), time.Minute)
	_, err = absent.Read(ctx, "7")
	require.ErrorIs(t, err, domain.ErrSessionUnavailable)
}
