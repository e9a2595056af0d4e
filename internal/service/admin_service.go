package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/smallbiznis/valora-txauth/internal/adapter/cache"
	"github.com/smallbiznis/valora-txauth/internal/domain"
	"github.com/smallbiznis/valora-txauth/internal/otp"
	"github.com/smallbiznis/valora-txauth/internal/ratelimit"
	"github.com/smallbiznis/valora-txauth/internal/repository"
	"github.com/smallbiznis/valora-txauth/internal/session"
)

// AdminService exposes operational views over the control plane state.
type AdminService struct {
	store    cache.Optional
	sessions *session.Manager
	users    repository.UserRepository
	observer
}

// NewAdminService wires dependencies.
func NewAdminService(store cache.Optional, sessions *session.Manager, users repository.UserRepository, logger *zap.Logger) *AdminService {
	return &AdminService{
		store:    store,
		sessions: sessions,
		users:    users,
		observer: newObserver(logger, nil),
	}
}

// SessionsResponse reports the number of live sessions.
type SessionsResponse struct {
	ActiveSessions int `json:"active_sessions"`
}

// PurgeResponse reports how many keys were removed for a user.
type PurgeResponse struct {
	UserID  string `json:"user_id"`
	Removed int    `json:"removed"`
}

// HealthResponse reports dependency status.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

// ActiveSessions counts live sessions.
func (s *AdminService) ActiveSessions(ctx context.Context) (*SessionsResponse, error) {
	ctx, span := s.startSpan(ctx, "AdminService.ActiveSessions")
	defer span.End()

	n, err := s.sessions.CountActive(ctx)
	if err != nil {
		return nil, unavailable("Session store is unavailable.")
	}
	return &SessionsResponse{ActiveSessions: n}, nil
}

// PurgeRequest names the user whose cached state is dropped.
type PurgeRequest struct {
	UserID string
	// ResetRateLimits also drops the user's rate counters, reopening any
	// window that is currently closed.
	ResetRateLimits bool
}

// PurgeUser drops the session and passcodes held for a user, and the rate
// counters only when asked to.
func (s *AdminService) PurgeUser(ctx context.Context, req PurgeRequest) (*PurgeResponse, error) {
	ctx, span := s.startSpan(ctx, "AdminService.PurgeUser")
	defer span.End()

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, invalidRequest("user id is required")
	}
	store, ok := s.store.Store()
	if !ok {
		return nil, unavailable("State store is unavailable.")
	}

	removed := 0
	deleted, err := store.Delete(ctx, session.Key(userID))
	if err != nil {
		return nil, s.purgeFailed(userID, err)
	}
	if deleted {
		removed++
	}

	prefixes := []string{otp.UserPrefix(userID)}
	if req.ResetRateLimits {
		prefixes = append(prefixes, s.ratePrefixes(ctx, userID)...)
	}
	for _, prefix := range prefixes {
		n, err := store.DeletePrefix(ctx, prefix)
		if err != nil {
			return nil, s.purgeFailed(userID, err)
		}
		removed += n
	}

	s.audit("admin_purge_user", "user_id", userID, "removed", removed, "reset_rate_limits", req.ResetRateLimits)
	return &PurgeResponse{UserID: userID, Removed: removed}, nil
}

// ratePrefixes covers the user id and, since login counters are keyed by
// email, the user's email when the user exists.
func (s *AdminService) ratePrefixes(ctx context.Context, userID string) []string {
	prefixes := []string{ratelimit.IdentifierPrefix(userID)}
	user, err := s.users.GetByID(ctx, userID)
	switch {
	case err == nil:
		prefixes = append(prefixes, ratelimit.IdentifierPrefix(strings.ToLower(user.Email)))
	case errors.Is(err, domain.ErrUserNotFound):
	default:
		s.log().Warn("purge user lookup failed", zap.String("user_id", userID), zap.Error(err))
	}
	return prefixes
}

// Health probes the state store. The service keeps answering without it, so
// an outage is reported as degraded rather than down.
func (s *AdminService) Health(ctx context.Context) *HealthResponse {
	store, ok := s.store.Store()
	if !ok {
		return &HealthResponse{Status: "degraded", Store: "unconfigured"}
	}
	if _, _, err := store.Get(ctx, "health:probe"); err != nil {
		return &HealthResponse{Status: "degraded", Store: "unavailable"}
	}
	return &HealthResponse{Status: "ok", Store: "ok"}
}

func (s *AdminService) purgeFailed(userID string, err error) *Error {
	s.log().Warn("purge user failed", zap.String("user_id", userID), zap.Error(err))
	if errors.Is(err, cache.ErrUnavailable) {
		return unavailable("State store is unavailable.")
	}
	return serverError(fmt.Sprintf("purge failed: %v", err))
}
