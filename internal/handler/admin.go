package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pipelabs/tradegate/internal/model"
	"github.com/pipelabs/tradegate/internal/pkg/apperrors"
	"github.com/pipelabs/tradegate/internal/service"
)

type ClientAdminRepo interface {
	GetByID(ctx context.Context, id string) (*model.Client, error)
	List(ctx context.Context, limit, offset int) ([]*model.Client, error)
	Create(ctx context.Context, c *model.Client) error
	Update(ctx context.Context, c *model.Client) error
}

type PairAdminRepo interface {
	Insert(ctx context.Context, p *model.TradingPair) error
	Delete(ctx context.Context, clientID, id string) error
}

// AdminHandler onboards clients and manages their tradable pairs. All
// routes sit behind the admin key; regular client auth never reaches them.
type AdminHandler struct {
	clients ClientAdminRepo
	pairs   PairAdminRepo
	manager *service.ClientManager
}

func NewAdminHandler(clients ClientAdminRepo, pairs PairAdminRepo, manager *service.ClientManager) *AdminHandler {
	return &AdminHandler{clients: clients, pairs: pairs, manager: manager}
}

type createClientRequest struct {
	Name     string               `json:"name" binding:"required"`
	Settings model.ClientSettings `json:"settings"`
}

func (h *AdminHandler) CreateClient(c *gin.Context) {
	var req createClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	client := &model.Client{
		ID:        uuid.NewString(),
		Name:      req.Name,
		APIKey:    newGatewayKey(),
		Status:    "active",
		Settings:  req.Settings,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.clients.Create(c.Request.Context(), client); err != nil {
		c.Error(apperrors.Wrap(err))
		return
	}
	// The API key is shown exactly once, at creation.
	c.JSON(http.StatusCreated, client)
}

func (h *AdminHandler) ListClients(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	clients, err := h.clients.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.Error(apperrors.Wrap(err))
		return
	}
	// Listings never echo gateway keys.
	for _, client := range clients {
		client.APIKey = ""
	}
	c.JSON(http.StatusOK, gin.H{"clients": clients})
}

type updateSettingsRequest struct {
	Settings model.ClientSettings `json:"settings"`
	Status   string               `json:"status"`
}

func (h *AdminHandler) UpdateClient(c *gin.Context) {
	id := c.Param("id")
	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	client, err := h.clients.GetByID(c.Request.Context(), id)
	if err != nil {
		c.Error(apperrors.Wrap(err))
		return
	}
	client.Settings = req.Settings
	if req.Status != "" {
		client.Status = req.Status
	}
	if err := h.clients.Update(c.Request.Context(), client); err != nil {
		c.Error(apperrors.Wrap(err))
		return
	}
	h.manager.Invalidate(client.APIKey)

	client.APIKey = ""
	c.JSON(http.StatusOK, client)
}

type addPairRequest struct {
	ClientID string `json:"client_id" binding:"required"`
	Exchange string `json:"exchange" binding:"required"`
	Pair     string `json:"pair" binding:"required"`
}

func (h *AdminHandler) AddPair(c *gin.Context) {
	var req addPairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	if _, err := h.clients.GetByID(c.Request.Context(), req.ClientID); err != nil {
		c.Error(apperrors.Wrap(err))
		return
	}

	pair := &model.TradingPair{
		ID:       uuid.NewString(),
		ClientID: req.ClientID,
		Exchange: model.NormalizeExchangeID(req.Exchange),
		Pair:     req.Pair,
		Status:   "active",
	}
	if err := h.pairs.Insert(c.Request.Context(), pair); err != nil {
		c.Error(apperrors.Wrap(err))
		return
	}
	c.JSON(http.StatusCreated, pair)
}

func (h *AdminHandler) RemovePair(c *gin.Context) {
	clientID := c.Query("client_id")
	id := c.Param("id")
	if clientID == "" || id == "" {
		c.Error(apperrors.NewInvalidRequest("client_id and pair id are required"))
		return
	}
	if err := h.pairs.Delete(c.Request.Context(), clientID, id); err != nil {
		c.Error(apperrors.Wrap(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func newGatewayKey() string {
	buf := make([]byte, 24)
	_, _ = rand.Read(buf)
	return "tgk_" + hex.EncodeToString(buf)
}
