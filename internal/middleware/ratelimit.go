package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pipelabs/tradegate/internal/service"
)

// RateLimitMiddleware enforces the per-client token bucket. Must run after
// AuthMiddleware.
func RateLimitMiddleware(cm *service.ClientManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		client := ClientFromContext(c)
		if client == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		if !cm.Limiter(client.ID).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": "1s",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
