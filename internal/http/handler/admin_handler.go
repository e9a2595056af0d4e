package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/valora-txauth/internal/service"
)

// AdminHandler serves operational endpoints.
type AdminHandler struct {
	Admin *service.AdminService
}

// NewAdminHandler creates the handler set.
func NewAdminHandler(admin *service.AdminService) *AdminHandler {
	return &AdminHandler{Admin: admin}
}

// ActiveSessions reports the live session count.
func (h *AdminHandler) ActiveSessions(c *gin.Context) {
	resp, err := h.Admin.ActiveSessions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// PurgeUser drops the cached state of one user. Rate counters survive unless
// reset_rate_limits=true is passed.
func (h *AdminHandler) PurgeUser(c *gin.Context) {
	resetLimits, _ := strconv.ParseBool(c.Query("reset_rate_limits"))
	resp, err := h.Admin.PurgeUser(c.Request.Context(), service.PurgeRequest{
		UserID:          c.Param("id"),
		ResetRateLimits: resetLimits,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Health reports liveness and the state store status.
func (h *AdminHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.Admin.Health(c.Request.Context()))
}
