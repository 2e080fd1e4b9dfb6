package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pipelabs/tradegate/internal/middleware"
	"github.com/pipelabs/tradegate/internal/pkg/apperrors"
	"github.com/pipelabs/tradegate/internal/service"
)

type CredentialHandler struct {
	svc *service.CredentialService
}

func NewCredentialHandler(svc *service.CredentialService) *CredentialHandler {
	return &CredentialHandler{svc: svc}
}

// Create stores a new exchange credential and attempts provisioning. A
// provisioning failure does not fail the request: the credential is already
// committed and the failure comes back as a warning.
func (h *CredentialHandler) Create(c *gin.Context) {
	client := middleware.ClientFromContext(c)
	if client == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized: missing client context"})
		return
	}

	var req service.CreateCredentialInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	view, warning, err := h.svc.Create(c.Request.Context(), client.ID, req)
	if err != nil {
		c.Error(apperrors.Wrap(err))
		return
	}

	resp := gin.H{"credential": view}
	if warning != nil {
		resp["warning"] = warning.Message
		resp["provisioning"] = warning
		middleware.AddAuditContext(c, "provisioning_warning", warning.Message)
	}
	middleware.AddAuditContext(c, "credential_id", view.ID)
	c.JSON(http.StatusCreated, resp)
}

func (h *CredentialHandler) List(c *gin.Context) {
	client := middleware.ClientFromContext(c)
	if client == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized: missing client context"})
		return
	}

	views, err := h.svc.List(c.Request.Context(), client.ID)
	if err != nil {
		c.Error(apperrors.Wrap(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"credentials": views})
}

func (h *CredentialHandler) Delete(c *gin.Context) {
	client := middleware.ClientFromContext(c)
	if client == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized: missing client context"})
		return
	}
	id := c.Param("id")
	if id == "" {
		c.Error(apperrors.NewInvalidRequest("credential id is required"))
		return
	}

	if err := h.svc.Delete(c.Request.Context(), client.ID, id); err != nil {
		c.Error(apperrors.Wrap(err))
		return
	}
	middleware.AddAuditContext(c, "deleted_credential", id)
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// Reinitialize re-provisions every active credential of the client. Partial
// failure is reported per credential, not as a request failure.
func (h *CredentialHandler) Reinitialize(c *gin.Context) {
	client := middleware.ClientFromContext(c)
	if client == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized: missing client context"})
		return
	}

	results, err := h.svc.Reinitialize(c.Request.Context(), client.ID)
	if err != nil {
		c.Error(apperrors.Wrap(err))
		return
	}
	middleware.AddAuditContext(c, "reinitialized", len(results))
	c.JSON(http.StatusOK, gin.H{"results": results})
}
