package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pipelabs/tradegate/internal/middleware"
	"github.com/pipelabs/tradegate/internal/pkg/apperrors"
	"github.com/pipelabs/tradegate/internal/service"
)

type CommandHandler struct {
	resolver *service.ScopeResolver
	interp   *service.Interpreter
}

func NewCommandHandler(resolver *service.ScopeResolver, interp *service.Interpreter) *CommandHandler {
	return &CommandHandler{resolver: resolver, interp: interp}
}

type commandRequest struct {
	Command string `json:"command" binding:"required"`
}

// Run executes one direct command ("check BTC-USDT", "refresh SOL", ...).
// Unknown verbs and scope denials come back as 200 with a structured error
// field: the request itself succeeded, the command did not.
func (h *CommandHandler) Run(c *gin.Context) {
	client := middleware.ClientFromContext(c)
	if client == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized: missing client context"})
		return
	}

	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	scope, err := h.resolver.Resolve(c.Request.Context(), client.ID)
	if err != nil {
		c.Error(apperrors.Wrap(err))
		return
	}

	result := h.interp.Run(c.Request.Context(), scope, req.Command)
	middleware.AddAuditContext(c, "command", req.Command)
	if len(result.Actions) > 0 {
		middleware.AddAuditContext(c, "actions", result.Actions)
	}
	c.JSON(http.StatusOK, result)
}
