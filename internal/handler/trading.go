package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pipelabs/tradegate/internal/bridge"
	"github.com/pipelabs/tradegate/internal/middleware"
	"github.com/pipelabs/tradegate/internal/model"
	"github.com/pipelabs/tradegate/internal/pkg/apperrors"
	"github.com/pipelabs/tradegate/internal/service"
)

// TradingHandler exposes the read endpoints (portfolio, orders, history,
// price) and the explicit order endpoints. Orders go through the shared
// executor so API calls and agent tool calls obey identical validation.
type TradingHandler struct {
	resolver *service.ScopeResolver
	exec     *service.Executor
	bridge   *bridge.Client
}

func NewTradingHandler(resolver *service.ScopeResolver, exec *service.Executor, bridgeClient *bridge.Client) *TradingHandler {
	return &TradingHandler{resolver: resolver, exec: exec, bridge: bridgeClient}
}

func (h *TradingHandler) scope(c *gin.Context) *model.ClientScope {
	client := middleware.ClientFromContext(c)
	if client == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized: missing client context"})
		return nil
	}
	scope, err := h.resolver.Resolve(c.Request.Context(), client.ID)
	if err != nil {
		c.Error(apperrors.Wrap(err))
		return nil
	}
	return scope
}

// Portfolio returns the balances of the client's account. Reads degrade to
// empty rather than failing when the execution service is down.
func (h *TradingHandler) Portfolio(c *gin.Context) {
	scope := h.scope(c)
	if scope == nil {
		return
	}
	balances := h.bridge.GetBalances(c.Request.Context(), scope.PrimaryAccount())
	c.JSON(http.StatusOK, gin.H{"account": scope.PrimaryAccount(), "balances": balances})
}

func (h *TradingHandler) Orders(c *gin.Context) {
	scope := h.scope(c)
	if scope == nil {
		return
	}
	pair := c.Query("pair")
	if pair != "" && !scope.AllowsPair(pair) {
		c.Error(apperrors.NewScopeDenied("Access denied: Trading pair '" + pair + "' not in your scope"))
		return
	}
	orders := h.bridge.GetOrders(c.Request.Context(), scope.PrimaryAccount(), pair)
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *TradingHandler) History(c *gin.Context) {
	scope := h.scope(c)
	if scope == nil {
		return
	}
	pair := c.Query("pair")
	if pair != "" && !scope.AllowsPair(pair) {
		c.Error(apperrors.NewScopeDenied("Access denied: Trading pair '" + pair + "' not in your scope"))
		return
	}
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	trades := h.bridge.GetHistory(c.Request.Context(), scope.PrimaryAccount(), pair, limit)
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

// Price quotes a pair through the validator: price reads are cheap but
// still scoped, a client cannot probe exchanges it has no credential for.
func (h *TradingHandler) Price(c *gin.Context) {
	scope := h.scope(c)
	if scope == nil {
		return
	}
	pair := c.Query("pair")
	connector := c.Query("connector")
	if connector == "" {
		connector = scope.PrimaryExchange()
	}

	record := h.exec.Execute(c.Request.Context(), scope, model.GetPrice{Connector: connector, Pair: pair})
	respondRecord(c, record)
}

type placeOrderRequest struct {
	Connector string   `json:"connector"`
	Pair      string   `json:"pair" binding:"required"`
	Side      string   `json:"side" binding:"required"`
	Amount    float64  `json:"amount" binding:"required"`
	OrderType string   `json:"order_type" binding:"required"`
	Price     *float64 `json:"price"`
}

func (h *TradingHandler) PlaceOrder(c *gin.Context) {
	scope := h.scope(c)
	if scope == nil {
		return
	}
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	if req.Connector == "" {
		req.Connector = scope.PrimaryExchange()
	}

	record := h.exec.Execute(c.Request.Context(), scope, model.PlaceOrder{
		Connector: req.Connector,
		Pair:      req.Pair,
		Side:      req.Side,
		Amount:    req.Amount,
		OrderType: req.OrderType,
		Price:     req.Price,
	})
	middleware.AddAuditContext(c, "action", record)
	respondRecord(c, record)
}

type cancelOrderRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

func (h *TradingHandler) CancelOrder(c *gin.Context) {
	scope := h.scope(c)
	if scope == nil {
		return
	}
	var req cancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	record := h.exec.Execute(c.Request.Context(), scope, model.CancelOrder{
		Account: scope.PrimaryAccount(),
		OrderID: req.OrderID,
	})
	middleware.AddAuditContext(c, "action", record)
	respondRecord(c, record)
}

// respondRecord maps an action record to a response: denials are 403,
// indeterminate timeouts are 504 with the record attached so the caller can
// retry with the same idempotency key, everything else is 200.
func respondRecord(c *gin.Context, record model.ActionRecord) {
	if record.Validation != "allowed" {
		c.Error(apperrors.NewScopeDenied(record.Validation))
		return
	}
	if record.Indeterminate {
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"state":  "indeterminate",
			"action": record,
			"detail": "The execution service timed out; the order may or may not exist. Retry with the same X-Idempotency-Key or reconcile via GET /v1/orders.",
		})
		return
	}
	c.JSON(http.StatusOK, record)
}
