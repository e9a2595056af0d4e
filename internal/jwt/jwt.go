package jwt

import (
	"errors"
	"fmt"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/smallbiznis/valora-txauth/internal/domain"
)

const algorithm = gojose.HS256

// Generator is responsible for signing and validating JWTs.
type Generator struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewGenerator constructs a JWT generator signing with an HMAC secret.
func NewGenerator(secret []byte, issuer string, accessTTL, refreshTTL time.Duration) *Generator {
	return &Generator{
		secret:     secret,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock returns a copy of g using now as its clock.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	clone := *g
	clone.now = now
	return &clone
}

// TokenClaims represent the custom JWT payload.
type TokenClaims struct {
	Type  domain.TokenType `json:"type"`
	Email string           `json:"email,omitempty"`
	Name  string           `json:"name,omitempty"`
}

// AccessTTL returns the lifetime of access tokens.
func (g *Generator) AccessTTL() time.Duration { return g.accessTTL }

// RefreshTTL returns the lifetime of refresh tokens.
func (g *Generator) RefreshTTL() time.Duration { return g.refreshTTL }

// TTLFor returns the configured lifetime of a token type.
func (g *Generator) TTLFor(typ domain.TokenType) time.Duration {
	if typ == domain.TokenTypeRefresh {
		return g.refreshTTL
	}
	return g.accessTTL
}

// GenerateAccessToken produces a signed access JWT.
func (g *Generator) GenerateAccessToken(user domain.User) (string, time.Time, error) {
	return g.generate(user, domain.TokenTypeAccess, g.accessTTL)
}

// GenerateRefreshToken produces a signed refresh JWT.
func (g *Generator) GenerateRefreshToken(user domain.User) (string, time.Time, error) {
	return g.generate(user, domain.TokenTypeRefresh, g.refreshTTL)
}

func (g *Generator) generate(user domain.User, typ domain.TokenType, ttl time.Duration) (string, time.Time, error) {
	signer, err := gojose.NewSigner(gojose.SigningKey{Algorithm: algorithm, Key: g.secret}, (&gojose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("new signer: %w", err)
	}

	now := g.now().UTC()
	expiry := now.Add(ttl)
	stdClaims := gojwt.Claims{
		ID:        uuid.NewString(),
		Subject:   user.ID,
		Issuer:    g.issuer,
		IssuedAt:  gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(expiry),
		NotBefore: gojwt.NewNumericDate(now),
	}

	custom := TokenClaims{
		Type:  typ,
		Email: user.Email,
		Name:  user.Name,
	}

	token, err := gojwt.Signed(signer).Claims(stdClaims).Claims(custom).Serialize()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("serialize jwt: %w", err)
	}

	return token, expiry, nil
}

// Validate verifies signature, issuer, expiry and token type. Every failure wraps
// domain.ErrInvalidToken.
func (g *Generator) Validate(token string, want domain.TokenType) (domain.Principal, error) {
	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{algorithm})
	if err != nil {
		return domain.Principal{}, fmt.Errorf("parse token: %w: %v", domain.ErrInvalidToken, err)
	}

	var std gojwt.Claims
	var custom TokenClaims
	if err := parsed.Claims(g.secret, &std, &custom); err != nil {
		return domain.Principal{}, fmt.Errorf("verify token: %w: %v", domain.ErrInvalidToken, err)
	}

	if err := std.ValidateWithLeeway(gojwt.Expected{Issuer: g.issuer, Time: g.now()}, 0); err != nil {
		return domain.Principal{}, fmt.Errorf("validate claims: %w: %v", domain.ErrInvalidToken, err)
	}

	if custom.Type != want {
		return domain.Principal{}, fmt.Errorf("token type %q: %w", custom.Type, domain.ErrInvalidToken)
	}

	principal := domain.Principal{
		UserID: std.Subject,
		Name:   custom.Name,
		Email:  custom.Email,
		Type:   custom.Type,
	}
	if std.IssuedAt != nil {
		principal.IssuedAt = std.IssuedAt.Time()
	}
	if std.Expiry != nil {
		principal.ExpiresAt = std.Expiry.Time()
	}
	return principal, nil
}

var errNoExpiry = errors.New("token has no expiry")

// RemainingLifetime reads the expiry of token without checking its signature.
// It is used to size revocation entries, never to authorise.
func (g *Generator) RemainingLifetime(token string) (time.Duration, error) {
	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{algorithm})
	if err != nil {
		return 0, fmt.Errorf("parse token: %w", err)
	}
	var std gojwt.Claims
	if err := parsed.UnsafeClaimsWithoutVerification(&std); err != nil {
		return 0, fmt.Errorf("read claims: %w", err)
	}
	if std.Expiry == nil {
		return 0, errNoExpiry
	}
	return std.Expiry.Time().Sub(g.now()), nil
}
