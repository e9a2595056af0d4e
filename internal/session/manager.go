// Package session keeps the single advisory session record per user in the
// TTL store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/valora-txauth/internal/adapter/cache"
	"github.com/smallbiznis/valora-txauth/internal/domain"
	"github.com/smallbiznis/valora-txauth/internal/metrics"
)

const keyPrefix = "session:"

// Key returns the store key of a user's session.
func Key(userID string) string {
	return keyPrefix + userID
}

// Manager opens, reads and closes sessions. Every failure to reach the store
// surfaces as domain.ErrSessionUnavailable.
type Manager struct {
	store   cache.Optional
	ttl     time.Duration
	now     func() time.Time
	metrics metrics.Recorder
	logger  *zap.Logger
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock overrides the clock used for expiry stamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithMetrics reports degraded reads and writes.
func WithMetrics(r metrics.Recorder) Option {
	return func(m *Manager) { m.metrics = metrics.OrNop(r) }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager constructs a Manager with ttl as the default session lifetime.
func NewManager(store cache.Optional, ttl time.Duration, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		ttl:     ttl,
		now:     time.Now,
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) log() *zap.Logger {
	if m.logger != nil {
		return m.logger
	}
	return zap.L()
}

// DefaultTTL returns the lifetime used when callers pass zero.
func (m *Manager) DefaultTTL() time.Duration {
	return m.ttl
}

func (m *Manager) backend() (cache.Store, error) {
	store, ok := m.store.Store()
	if !ok {
		m.metrics.StoreDegraded("session")
		return nil, domain.ErrSessionUnavailable
	}
	return store, nil
}

// Open writes payload as the user's only session, replacing any previous one.
func (m *Manager) Open(ctx context.Context, userID string, payload domain.Session, ttl time.Duration) (domain.Session, error) {
	store, err := m.backend()
	if err != nil {
		return domain.Session{}, err
	}
	if ttl <= 0 {
		ttl = m.ttl
	}
	payload.ExpiresAt = m.now().UTC().Add(ttl)

	encoded, err := json.Marshal(payload)
	if err != nil {
		return domain.Session{}, fmt.Errorf("marshal session: %w", err)
	}
	if err := store.Put(ctx, Key(userID), encoded, ttl); err != nil {
		return domain.Session{}, m.unavailable("open", userID, err)
	}
	return payload, nil
}

// Read loads the user's session. A missing record yields domain.ErrSessionNotFound.
func (m *Manager) Read(ctx context.Context, userID string) (domain.Session, error) {
	store, err := m.backend()
	if err != nil {
		return domain.Session{}, err
	}
	raw, ok, err := store.Get(ctx, Key(userID))
	if err != nil {
		return domain.Session{}, m.unavailable("read", userID, err)
	}
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		// A payload we cannot decode is as good as no session.
		m.log().Warn("session payload undecodable", zap.String("user_id", userID), zap.Error(err))
		return domain.Session{}, domain.ErrSessionUnavailable
	}
	return sess, nil
}

// Close deletes the user's session and reports whether one existed.
func (m *Manager) Close(ctx context.Context, userID string) (bool, error) {
	store, err := m.backend()
	if err != nil {
		return false, err
	}
	removed, err := store.Delete(ctx, Key(userID))
	if err != nil {
		return false, m.unavailable("close", userID, err)
	}
	return removed, nil
}

// Touch extends the session without changing its content. Read and rewrite are
// not atomic; a concurrent Open may be overwritten by the older payload.
func (m *Manager) Touch(ctx context.Context, userID string, ttl time.Duration) (domain.Session, error) {
	sess, err := m.Read(ctx, userID)
	if err != nil {
		return domain.Session{}, err
	}
	return m.Open(ctx, userID, sess, ttl)
}

// SetPendingTransaction records txnID as the transfer awaiting confirmation.
// The session keeps its remaining lifetime when that outlasts ttl.
func (m *Manager) SetPendingTransaction(ctx context.Context, userID, txnID string, ttl time.Duration) (domain.Session, error) {
	sess, err := m.Read(ctx, userID)
	if err != nil {
		return domain.Session{}, err
	}
	sess.PendingTransactionID = txnID
	return m.Open(ctx, userID, sess, m.lifetime(ctx, userID, ttl))
}

// ClearPendingTransaction drops the pending transfer reference when it still
// points at txnID. A missing session is not an error. Like
// SetPendingTransaction it never shortens the session.
func (m *Manager) ClearPendingTransaction(ctx context.Context, userID, txnID string, ttl time.Duration) error {
	sess, err := m.Read(ctx, userID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if sess.PendingTransactionID != txnID {
		return nil
	}
	sess.PendingTransactionID = ""
	_, err = m.Open(ctx, userID, sess, m.lifetime(ctx, userID, ttl))
	return err
}

// lifetime is the longer of ttl and what is left of the stored session. An
// unreadable expiry falls back to ttl.
func (m *Manager) lifetime(ctx context.Context, userID string, ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = m.ttl
	}
	store, ok := m.store.Store()
	if !ok {
		return ttl
	}
	remaining, found, err := store.TTL(ctx, Key(userID))
	if err != nil || !found {
		return ttl
	}
	if remaining > ttl {
		return remaining
	}
	return ttl
}

// CountActive returns how many sessions currently exist.
func (m *Manager) CountActive(ctx context.Context) (int, error) {
	store, err := m.backend()
	if err != nil {
		return 0, err
	}
	n, err := store.CountPrefix(ctx, keyPrefix)
	if err != nil {
		return 0, m.unavailable("count", "", err)
	}
	return n, nil
}

func (m *Manager) unavailable(op, userID string, err error) error {
	m.metrics.StoreDegraded("session")
	m.log().Warn("session store unavailable",
		zap.String("op", op),
		zap.String("user_id", userID),
		zap.Error(err),
	)
	return fmt.Errorf("session %s: %w", op, domain.ErrSessionUnavailable)
}
