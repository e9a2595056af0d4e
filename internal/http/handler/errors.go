package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-txauth/internal/service"
)

// respondError writes err in the {"error","error_description"} shape.
func respondError(c *gin.Context, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		zap.L().Error("unhandled service error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal server error."})
		return
	}

	body := gin.H{"error": svcErr.Code, "error_description": svcErr.Description}
	if svcErr.Status == http.StatusTooManyRequests {
		seconds := int(math.Ceil(svcErr.ResetIn.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(seconds))
		body["reset_in_seconds"] = seconds
	}
	c.JSON(svcErr.Status, body)
}

func badRequest(c *gin.Context, desc string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": desc})
}

func unauthenticated(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Authentication required."})
}
