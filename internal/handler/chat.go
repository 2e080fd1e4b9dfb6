package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pipelabs/tradegate/internal/llm"
	"github.com/pipelabs/tradegate/internal/middleware"
	"github.com/pipelabs/tradegate/internal/model"
	"github.com/pipelabs/tradegate/internal/pkg/apperrors"
	"github.com/pipelabs/tradegate/internal/service"
)

type ChatHandler struct {
	resolver *service.ScopeResolver
	agent    *service.Agent
	audit    *service.AuditService
}

func NewChatHandler(resolver *service.ScopeResolver, agent *service.Agent, audit *service.AuditService) *ChatHandler {
	return &ChatHandler{resolver: resolver, agent: agent, audit: audit}
}

type chatRequest struct {
	Message string `json:"message" binding:"required"`
	// History holds prior turns as {role, content} pairs; tool blocks are
	// never round-tripped through clients.
	History []chatTurn `json:"history"`
}

type chatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat answers a natural-language message within the caller's scope. Both
// the user message and the assistant reply (with executed actions) are
// persisted as chat turns.
func (h *ChatHandler) Chat(c *gin.Context) {
	client := middleware.ClientFromContext(c)
	if client == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized: missing client context"})
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	scope, err := h.resolver.Resolve(c.Request.Context(), client.ID)
	if err != nil {
		c.Error(apperrors.Wrap(err))
		return
	}

	history := make([]llm.Message, 0, len(req.History))
	for _, turn := range req.History {
		if turn.Role != llm.RoleUser && turn.Role != llm.RoleAssistant {
			continue
		}
		history = append(history, llm.TextMessage(turn.Role, turn.Content))
	}

	result, err := h.agent.Chat(c.Request.Context(), scope, req.Message, history)
	if err != nil {
		c.Error(apperrors.Wrap(err))
		return
	}

	now := time.Now().UTC()
	h.audit.LogTurn(&model.ChatTurn{
		ID:        uuid.NewString(),
		ClientID:  client.ID,
		Role:      llm.RoleUser,
		Content:   req.Message,
		CreatedAt: now,
	})
	h.audit.LogTurn(&model.ChatTurn{
		ID:        uuid.NewString(),
		ClientID:  client.ID,
		Role:      llm.RoleAssistant,
		Content:   result.Response,
		Actions:   result.ActionsTaken,
		CreatedAt: now,
	})

	if len(result.ActionsTaken) > 0 {
		middleware.AddAuditContext(c, "actions", result.ActionsTaken)
	}
	c.JSON(http.StatusOK, result)
}

// History returns the client's persisted chat turns, newest first.
func (h *ChatHandler) History(c *gin.Context) {
	client := middleware.ClientFromContext(c)
	if client == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized: missing client context"})
		return
	}
	turns, err := h.audit.ListTurns(c.Request.Context(), client.ID, 50)
	if err != nil {
		c.Error(apperrors.Wrap(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"turns": turns})
}
