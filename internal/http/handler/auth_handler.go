package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/valora-txauth/internal/http/middleware"
	"github.com/smallbiznis/valora-txauth/internal/service"
)

// AuthHandler serves login, refresh, logout and profile endpoints.
type AuthHandler struct {
	Auth *service.AuthService
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{Auth: auth}
}

// Login exchanges email and password for a token pair.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `form:"email" json:"email" binding:"required"`
		Password string `form:"password" json:"password" binding:"required"`
	}
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}

	resp, err := h.Auth.Login(c.Request.Context(), service.LoginRequest{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Refresh issues a new access token for a refresh token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `form:"refresh_token" json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "refresh_token is required")
		return
	}

	resp, err := h.Auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Logout revokes the bearer token, the optional refresh token and the session.
func (h *AuthHandler) Logout(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		unauthenticated(c)
		return
	}
	token, _ := middleware.GetAccessToken(c)

	var req struct {
		RefreshToken string `form:"refresh_token" json:"refresh_token"`
	}
	// The body is optional.
	_ = c.ShouldBind(&req)

	resp, err := h.Auth.Logout(c.Request.Context(), service.LogoutRequest{
		Principal:    principal,
		AccessToken:  token,
		RefreshToken: req.RefreshToken,
		IPAddress:    c.ClientIP(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		unauthenticated(c)
		return
	}

	resp, err := h.Auth.Me(c.Request.Context(), principal)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SecurityEvents lists the authenticated user's recent security events.
func (h *AuthHandler) SecurityEvents(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		unauthenticated(c)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "limit must be an integer")
			return
		}
		limit = n
	}

	resp, err := h.Auth.SecurityEvents(c.Request.Context(), principal, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
