package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminKeyHeader carries the operator key on admin requests.
const AdminKeyHeader = "X-Admin-Key"

// AdminKey admits requests whose X-Admin-Key matches key. With an empty key
// every request is refused, which keeps the admin routes closed until an
// operator configures one.
func AdminKey(key string) gin.HandlerFunc {
	expected := []byte(key)
	return func(c *gin.Context) {
		if len(expected) == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_client", "error_description": "Admin access is not configured."})
			return
		}
		provided := []byte(c.GetHeader(AdminKeyHeader))
		if subtle.ConstantTimeCompare(provided, expected) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_client", "error_description": "Admin key required."})
			return
		}
		c.Next()
	}
}
