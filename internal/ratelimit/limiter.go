// Package ratelimit counts sensitive actions per identifier in fixed windows.
//
// The window starts at the first request and is not aligned to the clock, so
// a burst straddling a window boundary may see up to twice the budget.
package ratelimit

import (
	"context"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/valora-txauth/internal/adapter/cache"
	"github.com/smallbiznis/valora-txauth/internal/metrics"
)

// Well-known actions.
const (
	ActionLogin    = "login"
	ActionOTPIssue = "otp_issue"
)

// Policy bounds an action to Max requests per Window. Max <= 0 disables it.
type Policy struct {
	Max    int
	Window time.Duration
}

// Decision is the result of a check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
	// Degraded is set when the store could not be consulted and the check failed open.
	Degraded bool
}

// ResetInSeconds rounds ResetIn up to whole seconds.
func (d Decision) ResetInSeconds() int {
	if d.ResetIn <= 0 {
		return 0
	}
	return int(math.Ceil(d.ResetIn.Seconds()))
}

// Key returns the counter key of an identifier and action.
func Key(identifier, action string) string {
	return IdentifierPrefix(identifier) + action
}

// IdentifierPrefix matches every counter kept for identifier.
func IdentifierPrefix(identifier string) string {
	return "rate:" + identifier + ":"
}

// Limiter implements fixed-window counting over the TTL store.
type Limiter struct {
	store   cache.Optional
	metrics metrics.Recorder
	logger  *zap.Logger
}

// NewLimiter constructs a Limiter.
func NewLimiter(store cache.Optional, recorder metrics.Recorder, logger *zap.Logger) *Limiter {
	return &Limiter{store: store, metrics: metrics.OrNop(recorder), logger: logger}
}

func (l *Limiter) log() *zap.Logger {
	if l.logger != nil {
		return l.logger
	}
	return zap.L()
}

// Check counts one request for identifier/action against policy.
func (l *Limiter) Check(ctx context.Context, identifier, action string, policy Policy) Decision {
	if policy.Max <= 0 || policy.Window <= 0 {
		return Decision{Allowed: true, Remaining: math.MaxInt32}
	}

	store, ok := l.store.Store()
	if !ok {
		return l.failOpen(action, policy, nil)
	}

	d, err := l.check(ctx, store, Key(identifier, action), policy)
	if err != nil {
		return l.failOpen(action, policy, err)
	}
	l.metrics.RateLimitDecision(action, d.Allowed)
	return d
}

func (l *Limiter) check(ctx context.Context, store cache.Store, key string, policy Policy) (Decision, error) {
	raw, found, err := store.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}

	if !found {
		if err := store.Put(ctx, key, []byte("1"), policy.Window); err != nil {
			return Decision{}, err
		}
		return Decision{Allowed: true, Remaining: policy.Max - 1, ResetIn: policy.Window}, nil
	}

	count, err := strconv.Atoi(string(raw))
	if err != nil {
		// Someone else owns this key's format; start a fresh window.
		if err := store.Put(ctx, key, []byte("1"), policy.Window); err != nil {
			return Decision{}, err
		}
		return Decision{Allowed: true, Remaining: policy.Max - 1, ResetIn: policy.Window}, nil
	}

	if count >= policy.Max {
		resetIn, ok, err := store.TTL(ctx, key)
		if err != nil {
			return Decision{}, err
		}
		if !ok {
			resetIn = 0
		}
		return Decision{Allowed: false, Remaining: 0, ResetIn: resetIn}, nil
	}

	next, err := store.Increment(ctx, key)
	if err != nil {
		return Decision{}, err
	}

	resetIn, ok, err := store.TTL(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		// The window lapsed between Get and Increment and INCR recreated the
		// key without expiry. Restart the window so it cannot persist.
		if err := store.Put(ctx, key, []byte(strconv.FormatInt(next, 10)), policy.Window); err != nil {
			return Decision{}, err
		}
		resetIn = policy.Window
	}

	// A concurrent caller got the last slot between Get and Increment.
	if next > int64(policy.Max) {
		return Decision{Allowed: false, Remaining: 0, ResetIn: resetIn}, nil
	}
	return Decision{Allowed: true, Remaining: policy.Max - int(next), ResetIn: resetIn}, nil
}

func (l *Limiter) failOpen(action string, policy Policy, err error) Decision {
	l.metrics.StoreDegraded("ratelimit")
	l.log().Warn("rate limit store unavailable, allowing request",
		zap.String("action", action),
		zap.Error(err),
	)
	return Decision{Allowed: true, Remaining: policy.Max, Degraded: true}
}
