package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pipelabs/tradegate/internal/bridge"
	"github.com/pipelabs/tradegate/internal/config"
	"github.com/pipelabs/tradegate/internal/middleware"
	"github.com/pipelabs/tradegate/internal/model"
	"github.com/pipelabs/tradegate/internal/repository"
	"github.com/pipelabs/tradegate/internal/service"
)

type stubClientRepo struct{ client *model.Client }

func (s *stubClientRepo) GetByID(_ context.Context, id string) (*model.Client, error) {
	if s.client != nil && s.client.ID == id {
		return s.client, nil
	}
	return nil, repository.ErrTenantNotFound
}

func (s *stubClientRepo) GetByAPIKey(_ context.Context, apiKey string) (*model.Client, error) {
	if s.client != nil && s.client.APIKey == apiKey {
		return s.client, nil
	}
	return nil, repository.ErrTenantNotFound
}

func (s *stubClientRepo) SlugTaken(_ context.Context, _, _ string) (bool, error) { return false, nil }

type stubCredRepo struct{ creds []*model.ExchangeCredential }

func (s *stubCredRepo) Insert(_ context.Context, c *model.ExchangeCredential) error {
	s.creds = append(s.creds, c)
	return nil
}
func (s *stubCredRepo) GetByID(_ context.Context, _, _ string) (*model.ExchangeCredential, error) {
	return nil, repository.ErrCredentialNotFound
}
func (s *stubCredRepo) ListByClient(_ context.Context, _ string) ([]*model.ExchangeCredential, error) {
	return s.creds, nil
}
func (s *stubCredRepo) ListActiveByClient(_ context.Context, _ string) ([]*model.ExchangeCredential, error) {
	return s.creds, nil
}
func (s *stubCredRepo) Deactivate(_ context.Context, _, _ string) error { return nil }
func (s *stubCredRepo) Delete(_ context.Context, _, _ string) error     { return nil }

type stubPairRepo struct{ pairs []*model.TradingPair }

func (s *stubPairRepo) ListByClient(_ context.Context, _ string) ([]*model.TradingPair, error) {
	return s.pairs, nil
}

func commandTestRouter(t *testing.T) (*gin.Engine, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	execServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/market/price":
			w.Write([]byte(`{"price": 200}`))
		case "/orders/place":
			w.Write([]byte(`{"order_id":"o-1","status":"open"}`))
		default:
			w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(execServer.Close)

	clients := &stubClientRepo{client: &model.Client{
		ID: "client-1", Name: "Acme Trading", APIKey: "sk-acme", Status: "active",
	}}
	creds := &stubCredRepo{creds: []*model.ExchangeCredential{
		{ID: "c1", ClientID: "client-1", Exchange: "binance", IsActive: true},
	}}
	pairs := &stubPairRepo{pairs: []*model.TradingPair{
		{ID: "p1", ClientID: "client-1", Pair: "BTC-USDT", Status: "active"},
	}}

	cfg := &config.Config{
		Auth: config.AuthConfig{RequireAPIKey: true},
		Risk: config.RiskConfig{MaxSpread: 0.5, MaxDailyVolume: 50000, ConfirmThreshold: 100, QPS: 100, Burst: 100},
	}

	usage := service.NewMemoryUsageRepo()
	bridgeClient := bridge.New(execServer.URL, 2*time.Second)
	resolver := service.NewScopeResolver(clients, creds, pairs, cfg.Risk)
	exec := service.NewExecutor(bridgeClient, service.NewValidator(usage), usage, 1600)
	interp := service.NewInterpreter(exec, bridgeClient)
	manager := service.NewClientManager(clients, cfg.Risk.QPS, cfg.Risk.Burst)

	r := gin.New()
	r.Use(middleware.ErrorHandler())
	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg, manager, clients))
	v1.Use(middleware.RateLimitMiddleware(manager))
	{
		v1.POST("/commands", NewCommandHandler(resolver, interp).Run)
		v1.GET("/scope", NewScopeHandler(resolver).Get)
	}
	return r, execServer
}

func postCommand(t *testing.T, router *gin.Engine, apiKey, command string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"command": command})
	req := httptest.NewRequest(http.MethodPost, "/v1/commands", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set(middleware.HeaderGatewayKey, apiKey)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCommandsRequireAuth(t *testing.T) {
	router, _ := commandTestRouter(t)

	rec := postCommand(t, router, "", "check BTC-USDT")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}

	rec = postCommand(t, router, "sk-wrong", "check BTC-USDT")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad key, got %d", rec.Code)
	}
}

func TestCommandsPrice(t *testing.T) {
	router, _ := commandTestRouter(t)

	rec := postCommand(t, router, "sk-acme", "price BTC-USDT")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result service.CommandResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if result.Data["price"].(float64) != 200 {
		t.Fatalf("price = %v", result.Data["price"])
	}
}

func TestCommandsUnknownVerb(t *testing.T) {
	router, _ := commandTestRouter(t)

	rec := postCommand(t, router, "sk-acme", "banana split")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var result service.CommandResult
	json.Unmarshal(rec.Body.Bytes(), &result)
	if result.Error != "Unknown command: banana split" {
		t.Fatalf("error = %q", result.Error)
	}
}

func TestScopeEndpoint(t *testing.T) {
	router, _ := commandTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/scope", nil)
	req.Header.Set(middleware.HeaderGatewayKey, "sk-acme")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var scope model.ClientScope
	if err := json.Unmarshal(rec.Body.Bytes(), &scope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(scope.AllowedAccounts) != 1 || scope.AllowedAccounts[0] != "client_acme_trading" {
		t.Fatalf("accounts = %v", scope.AllowedAccounts)
	}
	if scope.MaxSpread != 0.5 {
		t.Fatalf("max spread = %v", scope.MaxSpread)
	}
}
