package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/pipelabs/tradegate/internal/config"
	"github.com/pipelabs/tradegate/internal/middleware"
	"github.com/pipelabs/tradegate/internal/model"
	"github.com/pipelabs/tradegate/internal/repository"
	"github.com/pipelabs/tradegate/internal/service"
)

type memClientAdminRepo struct {
	clients map[string]*model.Client
}

func newMemClientAdminRepo() *memClientAdminRepo {
	return &memClientAdminRepo{clients: map[string]*model.Client{}}
}

func (m *memClientAdminRepo) GetByID(_ context.Context, id string) (*model.Client, error) {
	if c, ok := m.clients[id]; ok {
		return c, nil
	}
	return nil, repository.ErrTenantNotFound
}

func (m *memClientAdminRepo) GetByAPIKey(_ context.Context, apiKey string) (*model.Client, error) {
	for _, c := range m.clients {
		if c.APIKey == apiKey {
			return c, nil
		}
	}
	return nil, repository.ErrTenantNotFound
}

func (m *memClientAdminRepo) SlugTaken(_ context.Context, _, _ string) (bool, error) {
	return false, nil
}

func (m *memClientAdminRepo) List(_ context.Context, _, _ int) ([]*model.Client, error) {
	out := make([]*model.Client, 0, len(m.clients))
	for _, c := range m.clients {
		out = append(out, c)
	}
	return out, nil
}

func (m *memClientAdminRepo) Create(_ context.Context, c *model.Client) error {
	m.clients[c.ID] = c
	return nil
}

func (m *memClientAdminRepo) Update(_ context.Context, c *model.Client) error {
	m.clients[c.ID] = c
	return nil
}

type memPairAdminRepo struct {
	pairs map[string]*model.TradingPair
}

func (m *memPairAdminRepo) Insert(_ context.Context, p *model.TradingPair) error {
	m.pairs[p.ID] = p
	return nil
}

func (m *memPairAdminRepo) Delete(_ context.Context, clientID, id string) error {
	if p, ok := m.pairs[id]; ok && p.ClientID == clientID {
		delete(m.pairs, id)
	}
	return nil
}

func adminTestRouter(clients *memClientAdminRepo, pairs *memPairAdminRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Auth: config.AuthConfig{AdminKey: "admin-secret"}}
	manager := service.NewClientManager(clients, 10, 10)
	h := NewAdminHandler(clients, pairs, manager)

	r := gin.New()
	r.Use(middleware.ErrorHandler())
	admin := r.Group("/v1/admin")
	admin.Use(middleware.AdminMiddleware(cfg))
	{
		admin.POST("/clients", h.CreateClient)
		admin.GET("/clients", h.ListClients)
		admin.PUT("/clients/:id", h.UpdateClient)
		admin.POST("/pairs", h.AddPair)
		admin.DELETE("/pairs/:id", h.RemovePair)
	}
	return r
}

func adminRequest(router *gin.Engine, method, path, body, adminKey string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if adminKey != "" {
		req.Header.Set(middleware.HeaderAdminKey, adminKey)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateClientIssuesGatewayKey(t *testing.T) {
	clients := newMemClientAdminRepo()
	router := adminTestRouter(clients, &memPairAdminRepo{pairs: map[string]*model.TradingPair{}})

	rec := adminRequest(router, http.MethodPost, "/v1/admin/clients",
		`{"name":"Acme Trading","settings":{"max_spread":0.3}}`, "admin-secret")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var created model.Client
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(created.APIKey, "tgk_") {
		t.Fatalf("api key = %q, want tgk_ prefix", created.APIKey)
	}
	if created.Status != "active" {
		t.Fatalf("status = %q", created.Status)
	}
	if _, err := clients.GetByID(context.Background(), created.ID); err != nil {
		t.Fatalf("client not persisted: %v", err)
	}
}

func TestListClientsHidesGatewayKeys(t *testing.T) {
	clients := newMemClientAdminRepo()
	clients.Create(context.Background(), &model.Client{ID: "c1", Name: "Acme", APIKey: "tgk_secret"})
	router := adminTestRouter(clients, &memPairAdminRepo{pairs: map[string]*model.TradingPair{}})

	rec := adminRequest(router, http.MethodGet, "/v1/admin/clients", "", "admin-secret")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "tgk_secret") {
		t.Fatalf("listing leaked a gateway key: %s", rec.Body.String())
	}
}

func TestUpdateClientSettings(t *testing.T) {
	clients := newMemClientAdminRepo()
	clients.Create(context.Background(), &model.Client{ID: "c1", Name: "Acme", APIKey: "tgk_x", Status: "active"})
	router := adminTestRouter(clients, &memPairAdminRepo{pairs: map[string]*model.TradingPair{}})

	rec := adminRequest(router, http.MethodPut, "/v1/admin/clients/c1",
		`{"settings":{"max_daily_volume":75000},"status":"disabled"}`, "admin-secret")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	updated, _ := clients.GetByID(context.Background(), "c1")
	if updated.Settings.MaxDailyVolume != 75000 {
		t.Fatalf("max daily volume = %v", updated.Settings.MaxDailyVolume)
	}
	if updated.Status != "disabled" {
		t.Fatalf("status = %q", updated.Status)
	}
}

func TestAddPairNormalizesExchange(t *testing.T) {
	clients := newMemClientAdminRepo()
	clients.Create(context.Background(), &model.Client{ID: "c1", Name: "Acme"})
	pairs := &memPairAdminRepo{pairs: map[string]*model.TradingPair{}}
	router := adminTestRouter(clients, pairs)

	rec := adminRequest(router, http.MethodPost, "/v1/admin/pairs",
		`{"client_id":"c1","exchange":"Gate-io","pair":"SHARP-USDT"}`, "admin-secret")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var pair model.TradingPair
	json.Unmarshal(rec.Body.Bytes(), &pair)
	if pair.Exchange != "gate_io" {
		t.Fatalf("exchange = %q, want gate_io", pair.Exchange)
	}
	if stored := pairs.pairs[pair.ID]; stored == nil || stored.Pair != "SHARP-USDT" {
		t.Fatalf("pair not persisted: %+v", pairs.pairs)
	}
}

func TestAdminRoutesRejectBadKey(t *testing.T) {
	router := adminTestRouter(newMemClientAdminRepo(), &memPairAdminRepo{pairs: map[string]*model.TradingPair{}})

	rec := adminRequest(router, http.MethodGet, "/v1/admin/clients", "", "wrong-key")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	rec = adminRequest(router, http.MethodGet, "/v1/admin/clients", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
