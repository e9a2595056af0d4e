package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/valora-txauth/internal/domain"
	"github.com/smallbiznis/valora-txauth/internal/service"
)

const (
	principalKey   = "principal"
	accessTokenKey = "accessToken"
)

// Authenticator resolves a bearer token to its principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Principal, error)
}

// Auth validates the Authorization header and attaches the principal.
type Auth struct {
	AuthService Authenticator
}

// ValidateJWT ensures the request carries a live, unrevoked access token.
func (m *Auth) ValidateJWT(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Authorization header required."})
		return
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Bearer token required."})
		return
	}
	token := strings.TrimSpace(parts[1])

	principal, err := m.AuthService.Authenticate(c.Request.Context(), token)
	if err != nil {
		desc := "Invalid access token."
		var svcErr *service.Error
		if errors.As(err, &svcErr) {
			desc = svcErr.Description
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": desc})
		return
	}
	c.Set(principalKey, principal)
	c.Set(accessTokenKey, token)
	c.Next()
}

// GetPrincipal exposes the authenticated principal to handlers.
func GetPrincipal(c *gin.Context) (domain.Principal, bool) {
	value, ok := c.Get(principalKey)
	if !ok {
		return domain.Principal{}, false
	}
	principal, ok := value.(domain.Principal)
	return principal, ok
}

// GetAccessToken returns the raw bearer token of the request.
func GetAccessToken(c *gin.Context) (string, bool) {
	token := c.GetString(accessTokenKey)
	return token, token != ""
}
