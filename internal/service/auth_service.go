package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/valora-txauth/internal/config"
	"github.com/smallbiznis/valora-txauth/internal/domain"
	"github.com/smallbiznis/valora-txauth/internal/jwt"
	pw "github.com/smallbiznis/valora-txauth/internal/password"
	"github.com/smallbiznis/valora-txauth/internal/ratelimit"
	"github.com/smallbiznis/valora-txauth/internal/repository"
	"github.com/smallbiznis/valora-txauth/internal/revocation"
	"github.com/smallbiznis/valora-txauth/internal/session"
)

// AuthService encapsulates login, token refresh and logout.
type AuthService struct {
	users       repository.UserRepository
	banking     repository.BankingRepository
	sessions    *session.Manager
	limiter     *ratelimit.Limiter
	revocations *revocation.List
	jwt         *jwt.Generator
	cfg         config.Config
	observer
}

// NewAuthService wires dependencies.
func NewAuthService(users repository.UserRepository, banking repository.BankingRepository, sessions *session.Manager, limiter *ratelimit.Limiter, revocations *revocation.List, generator *jwt.Generator, events repository.SecurityEventRepository, cfg config.Config, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:       users,
		banking:     banking,
		sessions:    sessions,
		limiter:     limiter,
		revocations: revocations,
		jwt:         generator,
		cfg:         cfg,
		observer:    newObserver(logger, events),
	}
}

// LoginRequest carries credentials and the caller's network address.
type LoginRequest struct {
	Email     string
	Password  string
	IPAddress string
}

// Login rate limits by email, verifies the password, issues tokens and opens
// the user's session.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Login")
	defer span.End()

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, invalidRequest("Email and password are required.")
	}

	decision := s.limiter.Check(ctx, email, ratelimit.ActionLogin, ratelimit.Policy{
		Max:    s.cfg.LoginRateLimit,
		Window: s.cfg.LoginRateWindow,
	})
	if !decision.Allowed {
		s.securityEvent(ctx, email, domain.EventLoginRateLimited, "Too many login attempts", req.IPAddress)
		return nil, rateLimited(fmt.Sprintf("Too many login attempts. Try again in %d seconds.", decision.ResetInSeconds()), decision.ResetIn)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			span.RecordError(err)
			return nil, serverError("Unable to load user.")
		}
		s.securityEvent(ctx, email, domain.EventLoginFailed, "Unknown email", req.IPAddress)
		return nil, invalidCredentials()
	}

	valid, err := pw.Verify(req.Password, user.PasswordHash)
	if err != nil || !valid {
		span.RecordError(fmt.Errorf("invalid password"))
		s.securityEvent(ctx, user.ID, domain.EventLoginFailed, "Invalid password", req.IPAddress)
		return nil, invalidCredentials()
	}

	tokens, err := s.issueTokens(user, true)
	if err != nil {
		span.RecordError(err)
		return nil, serverError("Unable to issue tokens.")
	}

	resp := &LoginResponse{TokenResponse: *tokens, User: newUserViewModel(user)}
	_, err = s.sessions.Open(ctx, user.ID, domain.Session{
		Name:      user.Name,
		Email:     user.Email,
		Phone:     user.Phone,
		LoginTime: time.Now().UTC(),
		IPAddress: req.IPAddress,
	}, s.cfg.SessionTTL)
	if err != nil {
		// Tokens stay valid; conversational flows will ask for a fresh login.
		s.log().Warn("login without session", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		resp.SessionActive = true
	}

	s.securityEvent(ctx, user.ID, domain.EventLoginSuccess, "User logged in", req.IPAddress)
	s.audit("password.login.success", "user_id", user.ID, "session_active", resp.SessionActive, "rate_limit_degraded", decision.Degraded)
	return resp, nil
}

// Refresh exchanges a refresh token for a new access token. Revocation is
// consulted before the signature.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Refresh")
	defer span.End()

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, invalidRequest("refresh_token is required.")
	}

	if check := s.revocations.IsRevoked(ctx, refreshToken); check.Revoked {
		s.audit("token.refresh.revoked", "token", tokenPrefix(refreshToken))
		return nil, newError("invalid_grant", "Refresh token has been revoked.", http.StatusUnauthorized)
	}

	principal, err := s.jwt.Validate(refreshToken, domain.TokenTypeRefresh)
	if err != nil {
		span.RecordError(err)
		return nil, newError("invalid_grant", "Invalid refresh token.", http.StatusUnauthorized)
	}

	user, err := s.users.GetByID(ctx, principal.UserID)
	if err != nil {
		span.RecordError(err)
		return nil, newError("invalid_grant", "User not found.", http.StatusUnauthorized)
	}

	tokens, err := s.issueTokens(user, false)
	if err != nil {
		span.RecordError(err)
		return nil, serverError("Unable to issue tokens.")
	}
	tokens.RefreshToken = refreshToken

	if _, err := s.sessions.Touch(ctx, user.ID, s.cfg.SessionTTL); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		s.log().Debug("session not extended on refresh", zap.String("user_id", user.ID), zap.Error(err))
	}

	s.audit("token.refresh.success", "user_id", user.ID)
	return tokens, nil
}

// LogoutRequest names the tokens to invalidate.
type LogoutRequest struct {
	Principal    domain.Principal
	AccessToken  string
	RefreshToken string
	IPAddress    string
}

// Logout blacklists the access token and, when given, the refresh token, then
// closes the session. A store outage leaves tokens valid until expiry and is
// reported in the response rather than failing the request.
func (s *AuthService) Logout(ctx context.Context, req LogoutRequest) (*LogoutResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Logout")
	defer span.End()

	resp := &LogoutResponse{Success: true, Message: "Logged out successfully", TokensRevoked: true}

	if _, err := s.revocations.Revoke(ctx, req.AccessToken, domain.TokenTypeAccess); err != nil {
		resp.TokensRevoked = false
		span.RecordError(err)
	}

	if refresh := strings.TrimSpace(req.RefreshToken); refresh != "" {
		if _, err := s.revocations.Revoke(ctx, refresh, domain.TokenTypeRefresh); err != nil {
			resp.TokensRevoked = false
			span.RecordError(err)
		}
	}

	closed, err := s.sessions.Close(ctx, req.Principal.UserID)
	if err != nil {
		span.RecordError(err)
	}
	resp.SessionClosed = closed

	if !resp.TokensRevoked {
		resp.Message = "Logged out, but tokens could not be revoked and remain valid until they expire"
		s.log().Warn("logout without revocation", zap.String("user_id", req.Principal.UserID))
	}

	s.securityEvent(ctx, req.Principal.UserID, domain.EventLogoutSuccess, "User logged out", req.IPAddress)
	s.audit("logout.success", "user_id", req.Principal.UserID, "tokens_revoked", resp.TokensRevoked)
	return resp, nil
}

// Authenticate resolves an access token to its principal. A blacklisted token
// is rejected before its signature is examined. When the blacklist cannot be
// read the token is judged on its signature alone.
func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.Principal, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Authenticate")
	defer span.End()

	check := s.revocations.IsRevoked(ctx, token)
	if check.Revoked {
		return domain.Principal{}, newError("invalid_token", "Token has been revoked.", http.StatusUnauthorized)
	}

	principal, err := s.jwt.Validate(token, domain.TokenTypeAccess)
	if err != nil {
		span.RecordError(err)
		return domain.Principal{}, newError("invalid_token", "Invalid or expired token.", http.StatusUnauthorized)
	}
	if check.Degraded {
		s.log().Debug("token accepted without revocation check", zap.String("user_id", principal.UserID))
	}
	return principal, nil
}

// Me returns the caller's profile, primary account and session state.
func (s *AuthService) Me(ctx context.Context, principal domain.Principal) (*MeResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Me")
	defer span.End()

	user, err := s.users.GetByID(ctx, principal.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, newError("not_found", "User not found.", http.StatusNotFound)
	}
	if err != nil {
		span.RecordError(err)
		return nil, serverError("Unable to load user.")
	}

	resp := &MeResponse{UserViewModel: newUserViewModel(user)}
	if s.banking != nil {
		account, err := s.banking.PrimaryAccount(ctx, user.ID)
		switch {
		case err == nil:
			resp.Account = &AccountViewModel{
				AccountNumber: account.AccountNumber,
				AccountType:   account.AccountType,
				Balance:       account.Balance,
				Currency:      account.Currency,
			}
		case !errors.Is(err, domain.ErrAccountNotFound):
			span.RecordError(err)
		}
	}

	if sess, err := s.sessions.Read(ctx, user.ID); err == nil {
		resp.SessionActive = true
		resp.PendingTransactionID = sess.PendingTransactionID
	}
	return resp, nil
}

func (s *AuthService) issueTokens(user domain.User, withRefresh bool) (*TokenResponse, error) {
	access, _, err := s.jwt.GenerateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	resp := &TokenResponse{
		AccessToken: access,
		TokenType:   "bearer",
		ExpiresIn:   int(s.jwt.AccessTTL().Seconds()),
	}
	if withRefresh {
		refresh, _, err := s.jwt.GenerateRefreshToken(user)
		if err != nil {
			return nil, fmt.Errorf("generate refresh token: %w", err)
		}
		resp.RefreshToken = refresh
	}
	return resp, nil
}

func invalidCredentials() *Error {
	return newError("invalid_grant", "Invalid email or password.", http.StatusUnauthorized)
}

func newUserViewModel(user domain.User) UserViewModel {
	return UserViewModel{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Phone: user.Phone,
	}
}

// Security trail page sizes.
const (
	DefaultSecurityEventLimit = 20
	MaxSecurityEventLimit     = 100
)

// SecurityEvents returns the caller's most recent security events. A limit of
// zero selects the default page size.
func (s *AuthService) SecurityEvents(ctx context.Context, principal domain.Principal, limit int) (*SecurityEventsResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.SecurityEvents")
	defer span.End()

	switch {
	case limit == 0:
		limit = DefaultSecurityEventLimit
	case limit < 0 || limit > MaxSecurityEventLimit:
		return nil, invalidRequest(fmt.Sprintf("limit must be between 1 and %d.", MaxSecurityEventLimit))
	}

	resp := &SecurityEventsResponse{Success: true, UserID: principal.UserID, Events: []SecurityEventViewModel{}}
	if s.events == nil {
		return resp, nil
	}
	events, err := s.events.ListByUser(ctx, principal.UserID, limit)
	if err != nil {
		span.RecordError(err)
		return nil, serverError("Unable to load security events.")
	}
	for _, ev := range events {
		resp.Events = append(resp.Events, SecurityEventViewModel{
			EventType: ev.EventType,
			Details:   ev.Details,
			IPAddress: ev.IPAddress,
			Timestamp: ev.Timestamp,
		})
	}
	resp.Count = len(resp.Events)
	return resp, nil
}
