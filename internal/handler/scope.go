package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pipelabs/tradegate/internal/middleware"
	"github.com/pipelabs/tradegate/internal/pkg/apperrors"
	"github.com/pipelabs/tradegate/internal/service"
)

type ScopeHandler struct {
	resolver *service.ScopeResolver
}

func NewScopeHandler(resolver *service.ScopeResolver) *ScopeHandler {
	return &ScopeHandler{resolver: resolver}
}

// Get returns the caller's resolved scope: allowed accounts, pairs,
// exchanges and risk limits.
func (h *ScopeHandler) Get(c *gin.Context) {
	client := middleware.ClientFromContext(c)
	if client == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized: missing client context"})
		return
	}

	scope, err := h.resolver.Resolve(c.Request.Context(), client.ID)
	if err != nil {
		c.Error(apperrors.Wrap(err))
		return
	}
	c.JSON(http.StatusOK, scope)
}
