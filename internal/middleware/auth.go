package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pipelabs/tradegate/internal/config"
	"github.com/pipelabs/tradegate/internal/model"
	"github.com/pipelabs/tradegate/internal/service"
)

const (
	HeaderGatewayKey = "X-Gateway-Key"
	HeaderClientID   = "X-Client-ID"
	ContextClientKey = "client"
)

// AuthMiddleware resolves X-Gateway-Key to a client and stores it in the
// request context. With auth.require_api_key disabled (development only), a
// bare X-Client-ID header is accepted instead.
func AuthMiddleware(cfg *config.Config, cm *service.ClientManager, clients service.ClientRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(HeaderGatewayKey)
		if apiKey == "" {
			if cfg != nil && !cfg.Auth.RequireAPIKey {
				if clientID := c.GetHeader(HeaderClientID); clientID != "" {
					client, err := clients.GetByID(c.Request.Context(), clientID)
					if err == nil {
						c.Set(ContextClientKey, client)
						c.Next()
						return
					}
				}
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			c.Abort()
			return
		}

		client, err := cm.Authenticate(c.Request.Context(), apiKey)
		if err != nil || client.Status == "disabled" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			c.Abort()
			return
		}

		c.Set(ContextClientKey, client)
		c.Next()
	}
}

// ClientFromContext returns the authenticated client, or nil outside the
// auth chain.
func ClientFromContext(c *gin.Context) *model.Client {
	val, exists := c.Get(ContextClientKey)
	if !exists {
		return nil
	}
	client, ok := val.(*model.Client)
	if !ok {
		return nil
	}
	return client
}
