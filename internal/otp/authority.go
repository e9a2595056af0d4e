// Package otp issues and verifies passcodes bound to a pending transaction.
package otp

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/valora-txauth/internal/adapter/cache"
	"github.com/smallbiznis/valora-txauth/internal/domain"
	"github.com/smallbiznis/valora-txauth/internal/metrics"
)

// maxRedraws bounds the loop that avoids repeating the previous code.
const maxRedraws = 8

// Key returns the store key of the passcode for userID and txnID.
func Key(userID, txnID string) string {
	return "otp:" + userID + ":" + txnID
}

// UserPrefix matches every passcode that belongs to userID.
func UserPrefix(userID string) string {
	return "otp:" + userID + ":"
}

// Verification is the result of checking a submitted code.
type Verification struct {
	Outcome      domain.OTPOutcome
	AttemptsLeft int
}

// Config carries the passcode lifetime and attempt budget.
type Config struct {
	TTL         time.Duration
	MaxAttempts int
}

// Authority owns the otp: key space. Verification fails closed when the store
// is unavailable.
type Authority struct {
	store    cache.Optional
	cfg      Config
	generate Generator
	now      func() time.Time
	metrics  metrics.Recorder
	logger   *zap.Logger
}

// Option customises an Authority.
type Option func(*Authority)

// WithGenerator replaces the random code source.
func WithGenerator(g Generator) Option {
	return func(a *Authority) { a.generate = g }
}

// WithClock overrides the clock used for expiry stamps.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) { a.now = now }
}

// WithMetrics reports issuance and verification outcomes.
func WithMetrics(r metrics.Recorder) Option {
	return func(a *Authority) { a.metrics = metrics.OrNop(r) }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Authority) { a.logger = logger }
}

// NewAuthority constructs an Authority.
func NewAuthority(store cache.Optional, cfg Config, opts ...Option) *Authority {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	a := &Authority{
		store:    store,
		cfg:      cfg,
		generate: RandomCode,
		now:      time.Now,
		metrics:  metrics.Nop{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Authority) log() *zap.Logger {
	if a.logger != nil {
		return a.logger
	}
	return zap.L()
}

// MaxAttempts returns the attempt budget per passcode.
func (a *Authority) MaxAttempts() int {
	return a.cfg.MaxAttempts
}

// TTL returns the passcode lifetime.
func (a *Authority) TTL() time.Duration {
	return a.cfg.TTL
}

// Issue mints a code for txnID, replacing any earlier record for the same key.
// The new code always differs from the replaced one.
func (a *Authority) Issue(ctx context.Context, userID, txnID string) (domain.OTPIssue, error) {
	store, ok := a.store.Store()
	if !ok {
		return domain.OTPIssue{}, a.unavailable("issue", nil)
	}
	key := Key(userID, txnID)

	previous, err := a.load(ctx, store, key)
	if err != nil {
		return domain.OTPIssue{}, a.unavailable("issue", err)
	}

	code, err := a.draw(previous)
	if err != nil {
		return domain.OTPIssue{}, err
	}

	record := domain.OTPRecord{
		Code:          code,
		TransactionID: txnID,
		UserID:        userID,
		Attempts:      0,
	}
	if err := a.save(ctx, store, key, record, a.cfg.TTL); err != nil {
		return domain.OTPIssue{}, a.unavailable("issue", err)
	}

	a.metrics.OTPIssued()
	return domain.OTPIssue{
		Code:          code,
		TransactionID: txnID,
		ExpiresAt:     a.now().UTC().Add(a.cfg.TTL),
	}, nil
}

func (a *Authority) draw(previous *domain.OTPRecord) (string, error) {
	for i := 0; i < maxRedraws; i++ {
		code, err := a.generate()
		if err != nil {
			return "", err
		}
		if previous == nil || code != previous.Code {
			return code, nil
		}
	}
	return "", errors.New("otp: generator keeps repeating the previous code")
}

// Verify checks code for txnID. Domain outcomes come back in Verification;
// the error is reserved for store failures and wraps domain.ErrStoreUnavailable.
func (a *Authority) Verify(ctx context.Context, userID, txnID, code string) (Verification, error) {
	store, ok := a.store.Store()
	if !ok {
		return Verification{}, a.unavailable("verify", nil)
	}
	key := Key(userID, txnID)

	record, err := a.load(ctx, store, key)
	if err != nil {
		return Verification{}, a.unavailable("verify", err)
	}
	if record == nil {
		return a.result(domain.OTPExpired, 0), nil
	}

	if record.Attempts >= a.cfg.MaxAttempts {
		if _, err := store.Delete(ctx, key); err != nil {
			return Verification{}, a.unavailable("verify", err)
		}
		return a.result(domain.OTPExhausted, 0), nil
	}

	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) == 1 {
		if _, err := store.Delete(ctx, key); err != nil {
			return Verification{}, a.unavailable("verify", err)
		}
		return a.result(domain.OTPVerified, a.cfg.MaxAttempts-record.Attempts), nil
	}

	record.Attempts++
	remaining, alive, err := store.TTL(ctx, key)
	if err != nil {
		return Verification{}, a.unavailable("verify", err)
	}
	if !alive {
		// Expired between read and rewrite.
		return a.result(domain.OTPExpired, 0), nil
	}
	if err := a.save(ctx, store, key, *record, remaining); err != nil {
		return Verification{}, a.unavailable("verify", err)
	}
	return a.result(domain.OTPMismatch, a.cfg.MaxAttempts-record.Attempts), nil
}

func (a *Authority) result(outcome domain.OTPOutcome, left int) Verification {
	a.metrics.OTPVerification(string(outcome))
	if left < 0 {
		left = 0
	}
	return Verification{Outcome: outcome, AttemptsLeft: left}
}

func (a *Authority) load(ctx context.Context, store cache.Store, key string) (*domain.OTPRecord, error) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var record domain.OTPRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		a.log().Warn("otp record undecodable, discarding", zap.String("key", key), zap.Error(err))
		if _, err := store.Delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &record, nil
}

func (a *Authority) save(ctx context.Context, store cache.Store, key string, record domain.OTPRecord, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal otp: %w", err)
	}
	return store.Put(ctx, key, payload, ttl)
}

func (a *Authority) unavailable(op string, err error) error {
	a.metrics.StoreDegraded("otp")
	a.log().Error("otp store unavailable", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("otp %s: %w", op, domain.ErrStoreUnavailable)
}
