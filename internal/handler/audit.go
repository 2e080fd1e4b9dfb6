package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pipelabs/tradegate/internal/middleware"
	"github.com/pipelabs/tradegate/internal/pkg/apperrors"
	"github.com/pipelabs/tradegate/internal/service"
)

type AuditHandler struct {
	svc *service.AuditService
}

func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// List returns the caller's audit entries, newest first. Always scoped to
// the authenticated client.
func (h *AuditHandler) List(c *gin.Context) {
	client := middleware.ClientFromContext(c)
	if client == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized: missing client context"})
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	var fromPtr, toPtr *time.Time
	if raw := c.Query("from"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			c.Error(apperrors.NewInvalidRequest(err.Error()))
			return
		}
		fromPtr = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			c.Error(apperrors.NewInvalidRequest(err.Error()))
			return
		}
		toPtr = &t
	}

	records, err := h.svc.List(c.Request.Context(), client.ID, limit, fromPtr, toPtr)
	if err != nil {
		c.Error(apperrors.Wrap(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func parseTime(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q: use RFC3339 or YYYY-MM-DD", raw)
}
