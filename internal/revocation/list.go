// Package revocation keeps the blacklist of tokens invalidated before their
// natural expiry.
//
// Lookups fail open: when the store is unreachable a token is treated as not
// revoked and the check is flagged Degraded. This trades a window in which a
// logged-out token still works for not locking every user out during a store
// outage.
package revocation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/valora-txauth/internal/adapter/cache"
	"github.com/smallbiznis/valora-txauth/internal/domain"
	"github.com/smallbiznis/valora-txauth/internal/metrics"
)

const keyPrefix = "blacklist:"

var marker = []byte("1")

// Key returns the store key of a blacklisted token.
func Key(token string) string {
	return keyPrefix + token
}

// Lifetimes reports how long a token remains valid and its configured TTL.
type Lifetimes interface {
	RemainingLifetime(token string) (time.Duration, error)
	TTLFor(typ domain.TokenType) time.Duration
}

// Check is the answer to IsRevoked.
type Check struct {
	Revoked  bool
	Degraded bool
}

// List is the token revocation list.
type List struct {
	store     cache.Optional
	lifetimes Lifetimes
	metrics   metrics.Recorder
	logger    *zap.Logger
}

// NewList constructs a List.
func NewList(store cache.Optional, lifetimes Lifetimes, recorder metrics.Recorder, logger *zap.Logger) *List {
	return &List{
		store:     store,
		lifetimes: lifetimes,
		metrics:   metrics.OrNop(recorder),
		logger:    logger,
	}
}

func (l *List) log() *zap.Logger {
	if l.logger != nil {
		return l.logger
	}
	return zap.L()
}

// Revoke blacklists token of the given type for as long as it stays valid.
// It reports false without error when the token has already expired.
func (l *List) Revoke(ctx context.Context, token string, typ domain.TokenType) (bool, error) {
	ttl := l.ttlFor(token, typ)
	if ttl <= 0 {
		return false, nil
	}
	return l.RevokeFor(ctx, token, typ, ttl)
}

// RevokeFor blacklists token for exactly ttl.
func (l *List) RevokeFor(ctx context.Context, token string, typ domain.TokenType, ttl time.Duration) (bool, error) {
	store, ok := l.store.Store()
	if !ok {
		l.metrics.StoreDegraded("revocation")
		return false, fmt.Errorf("revoke token: %w", domain.ErrStoreUnavailable)
	}
	if err := store.Put(ctx, Key(token), marker, ttl); err != nil {
		l.metrics.StoreDegraded("revocation")
		l.log().Warn("revocation store unavailable", zap.String("op", "revoke"), zap.Error(err))
		return false, fmt.Errorf("revoke token: %w", domain.ErrStoreUnavailable)
	}
	l.metrics.TokenRevoked(string(typ))
	return true, nil
}

func (l *List) ttlFor(token string, typ domain.TokenType) time.Duration {
	if l.lifetimes == nil {
		return 0
	}
	remaining, err := l.lifetimes.RemainingLifetime(token)
	if err != nil {
		return l.lifetimes.TTLFor(typ)
	}
	if remaining <= 0 {
		return 0
	}
	// Rounding the NumericDate down can shave a second; never undercut it.
	return remaining + time.Second
}

// IsRevoked reports whether token is blacklisted. It never returns an error.
func (l *List) IsRevoked(ctx context.Context, token string) Check {
	store, ok := l.store.Store()
	if !ok {
		l.metrics.StoreDegraded("revocation")
		return Check{Degraded: true}
	}
	_, found, err := store.Get(ctx, Key(token))
	if err != nil {
		l.metrics.StoreDegraded("revocation")
		l.log().Warn("revocation store unavailable, treating token as valid", zap.Error(err))
		return Check{Degraded: true}
	}
	return Check{Revoked: found}
}
