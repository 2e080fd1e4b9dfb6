package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pipelabs/tradegate/internal/config"
)

const HeaderAdminKey = "X-Admin-Key"

// AdminMiddleware gates credential mutation routes behind a static admin
// key. An unset key locks the routes entirely instead of opening them.
func AdminMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg == nil || cfg.Auth.AdminKey == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin key not configured"})
			c.Abort()
			return
		}
		if c.GetHeader(HeaderAdminKey) != cfg.Auth.AdminKey {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid admin key"})
			c.Abort()
			return
		}
		c.Next()
	}
}
