package otp_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/valora-txauth/internal/adapter/cache"
	"github.com/smallbiznis/valora-txauth/internal/adapter/cache/cachetest"
	"github.com/smallbiznis/valora-txauth/internal/domain"
	"github.com/smallbiznis/valora-txauth/internal/otp"
)

func sequence(codes ...string) otp.Generator {
	i := 0
	return func() (string, error) {
		code := codes[i%len(codes)]
		i++
		return code, nil
	}
}

func newAuthority(t *testing.T, opts ...otp.Option) (*otp.Authority, *cache.RedisStore, func(time.Duration)) {
	t.Helper()
	store, srv := cachetest.New(t)
	a := otp.NewAuthority(cache.Available(store), otp.Config{TTL: 5 * time.Minute, MaxAttempts: 3}, opts...)
	return a, store, srv.FastForward
}

func TestIssueStoresRecord(t *testing.T) {
	ctx := context.Background()
	a, store, _ := newAuthority(t, otp.WithGenerator(sequence("123456")))

	issue, err := a.Issue(ctx, "7", "TXN1")
	require.NoError(t, err)
	require.Equal(t, "123456", issue.Code)
	require.Equal(t, "TXN1", issue.TransactionID)

	raw, ok, err := store.Get(ctx, otp.Key("7", "TXN1"))
	require.NoError(t, err)
	require.True(t, ok)

	var record domain.OTPRecord
	require.NoError(t, json.Unmarshal(raw, &record))
	require.Equal(t, domain.OTPRecord{Code: "123456", TransactionID: "TXN1", UserID: "7", Attempts: 0}, record)

	ttl, ok, err := store.TTL(ctx, otp.Key("7", "TXN1"))
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, float64(5*time.Minute), float64(ttl), float64(time.Second))
}

func TestReissueNeverRepeatsPreviousCode(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newAuthority(t, otp.WithGenerator(sequence("111111", "111111", "111111", "222222")))

	first, err := a.Issue(ctx, "7", "TXN1")
	require.NoError(t, err)
	second, err := a.Issue(ctx, "7", "TXN1")
	require.NoError(t, err)

	require.Equal(t, "111111", first.Code)
	require.Equal(t, "222222", second.Code)

	v, err := a.Verify(ctx, "7", "TXN1", "111111")
	require.NoError(t, err)
	require.Equal(t, domain.OTPMismatch, v.Outcome)
}

func TestVerifyMatchDeletesRecord(t *testing.T) {
	ctx := context.Background()
	a, store, _ := newAuthority(t, otp.WithGenerator(sequence("123456")))

	_, err := a.Issue(ctx, "7", "TXN1")
	require.NoError(t, err)

	v, err := a.Verify(ctx, "7", "TXN1", "123456")
	require.NoError(t, err)
	require.Equal(t, domain.OTPVerified, v.Outcome)
	require.Equal(t, 3, v.AttemptsLeft)

	_, ok, err := store.Get(ctx, otp.Key("7", "TXN1"))
	require.NoError(t, err)
	require.False(t, ok)

	v, err = a.Verify(ctx, "7", "TXN1", "123456")
	require.NoError(t, err)
	require.Equal(t, domain.OTPExpired, v.Outcome)
	require.Zero(t, v.AttemptsLeft)
}

func TestVerifyExhaustsAfterMaxMismatches(t *testing.T) {
	ctx := context.Background()
	a, store, _ := newAuthority(t, otp.WithGenerator(sequence("123456")))

	_, err := a.Issue(ctx, "7", "TXN1")
	require.NoError(t, err)

	for want := 2; want >= 0; want-- {
		v, err := a.Verify(ctx, "7", "TXN1", "000000")
		require.NoError(t, err)
		require.Equal(t, domain.OTPMismatch, v.Outcome)
		require.Equal(t, want, v.AttemptsLeft)
	}

	v, err := a.Verify(ctx, "7", "TXN1", "123456")
	require.NoError(t, err)
	require.Equal(t, domain.OTPExhausted, v.Outcome)
	require.Zero(t, v.AttemptsLeft)

	_, ok, err := store.Get(ctx, otp.Key("7", "TXN1"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMismatchPreservesRemainingTTL(t *testing.T) {
	ctx := context.Background()
	a, store, forward := newAuthority(t, otp.WithGenerator(sequence("123456")))

	_, err := a.Issue(ctx, "7", "TXN1")
	require.NoError(t, err)
	forward(4 * time.Minute)

	_, err = a.Verify(ctx, "7", "TXN1", "999999")
	require.NoError(t, err)

	ttl, ok, err := store.TTL(ctx, otp.Key("7", "TXN1"))
	require.NoError(t, err)
	require.True(t, ok)
	require.LessOrEqual(t, ttl, time.Minute)

	forward(time.Minute + time.Second)
	v, err := a.Verify(ctx, "7", "TXN1", "123456")
	require.NoError(t, err)
	require.Equal(t, domain.OTPExpired, v.Outcome)
}

func TestComparisonIsExactString(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newAuthority(t, otp.WithGenerator(sequence("123456")))

	_, err := a.Issue(ctx, "7", "TXN1")
	require.NoError(t, err)

	v, err := a.Verify(ctx, "7", "TXN1", "0123456")
	require.NoError(t, err)
	require.Equal(t, domain.OTPMismatch, v.Outcome)

	v, err = a.Verify(ctx, "7", "TXN1", " 123456")
	require.NoError(t, err)
	require.Equal(t, domain.OTPMismatch, v.Outcome)
}

func TestCodesAreScopedByTransaction(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newAuthority(t, otp.WithGenerator(sequence("111111", "222222")))

	_, err := a.Issue(ctx, "7", "TXN1")
	require.NoError(t, err)
	_, err = a.Issue(ctx, "7", "TXN2")
	require.NoError(t, err)

	v, err := a.Verify(ctx, "7", "TXN2", "111111")
	require.NoError(t, err)
	require.Equal(t, domain.OTPMismatch, v.Outcome)

	v, err = a.Verify(ctx, "8", "TXN1", "111111")
	require.NoError(t, err)
	require.Equal(t, domain.OTPExpired, v.Outcome)
}

func TestStoreOutageFailsClosed(t *testing.T) {
	ctx := context.Background()
	store, srv := cachetest.New(t)
	a := otp.NewAuthority(cache.Available(store), otp.Config{})
	srv.Close()

	_, err := a.Issue(ctx, "7", "TXN1")
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = a.Verify(ctx, "7", "TXN1", "123456")
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	absent := otp.NewAuthority(cache.Unavailable(), otp.Config{})
	_, err = absent.Verify(ctx, "7", "TXN1", "123456")
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestRandomCode(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := otp.RandomCode()
		require.NoError(t, err)
		require.True(t, otp.WellFormed(code), code)
		require.NotEqual(t, byte('0'), code[0])
	}
}

func TestWellFormed(t *testing.T) {
	require.True(t, otp.WellFormed("123456"))
	require.False(t, otp.WellFormed("12345"))
	require.False(t, otp.WellFormed("1234567"))
	require.False(t, otp.WellFormed("12a456"))
	require.False(t, otp.WellFormed("١٢٣٤٥٦"))
}
