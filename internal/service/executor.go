package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/pipelabs/tradegate/internal/bridge"
	"github.com/pipelabs/tradegate/internal/model"
	"github.com/pipelabs/tradegate/internal/pkg/logger"
	"github.com/pipelabs/tradegate/internal/pkg/metrics"
)

const (
	outcomeAllowed       = "allowed"
	outcomeDenied        = "denied"
	outcomeError         = "error"
	outcomeIndeterminate = "indeterminate"
	outcomeOK            = "ok"
)

// Executor runs one validated TradingAction against the execution service.
// Both entry points (command interpreter and agent tool dispatcher) go
// through here, so validation, usage accounting and the indeterminate-on-
// timeout rule cannot diverge between them.
type Executor struct {
	bridge    *bridge.Client
	validator *Validator
	usage     UsageRepo
	orderSize float64
}

func NewExecutor(bridgeClient *bridge.Client, validator *Validator, usage UsageRepo, orderSize float64) *Executor {
	if orderSize <= 0 {
		orderSize = 1600
	}
	return &Executor{bridge: bridgeClient, validator: validator, usage: usage, orderSize: orderSize}
}

// Execute validates then runs the action, returning the audit record of what
// happened. A denied action produces a record with the denial reason and no
// bridge calls. A timed-out order placement is recorded indeterminate and is
// never resubmitted.
func (e *Executor) Execute(ctx context.Context, scope *model.ClientScope, action model.TradingAction) model.ActionRecord {
	record := model.ActionRecord{Kind: action.Kind(), Action: action}

	if err := e.validator.Validate(ctx, scope, action); err != nil {
		record.Validation = err.Error()
		metrics.ActionsTotal.WithLabelValues(string(action.Kind()), outcomeDenied).Inc()
		logger.Warn("action denied", "client", scope.ClientID, "kind", string(action.Kind()), "reason", err.Error())
		return record
	}
	record.Validation = outcomeAllowed

	switch a := action.(type) {
	case model.CheckStatus:
		record.Execution = e.checkStatus(ctx, a)
	case model.RefreshSpread:
		record.Execution, record.Indeterminate = e.refreshSpread(ctx, scope, a)
	case model.GetPrice:
		record.Execution = e.getPrice(ctx, a)
	case model.PlaceOrder:
		record.Execution, record.Indeterminate = e.placeOrder(ctx, scope, a)
	case model.CancelOrder:
		record.Execution, record.Indeterminate = e.cancelOrder(ctx, a)
	case model.GenerateVolume:
		record.Execution, record.Indeterminate = e.generateVolume(ctx, scope, a)
	}

	metrics.ActionsTotal.WithLabelValues(string(action.Kind()), executionOutcome(record)).Inc()
	return record
}

func (e *Executor) checkStatus(ctx context.Context, a model.CheckStatus) map[string]any {
	balances := e.bridge.GetBalances(ctx, a.Account)
	orders := e.bridge.GetOrders(ctx, a.Account, a.Pair)
	return map[string]any{
		"pair":        a.Pair,
		"balances":    balances,
		"open_orders": orders,
	}
}

func (e *Executor) getPrice(ctx context.Context, a model.GetPrice) map[string]any {
	price := e.bridge.GetPrice(ctx, a.Connector, a.Pair)
	out := map[string]any{"pair": a.Pair, "price": price}
	if price == 0 {
		out["error"] = "Failed to get current price"
	}
	return out
}

// refreshSpread quotes both sides of the book around the current price:
// buy at p*(1-s/100), sell at p*(1+s/100).
func (e *Executor) refreshSpread(ctx context.Context, scope *model.ClientScope, a model.RefreshSpread) (map[string]any, bool) {
	price := e.bridge.GetPrice(ctx, a.Connector, a.Pair)
	if price == 0 {
		return map[string]any{"error": "Failed to get current price"}, false
	}

	mid := decimal.NewFromFloat(price)
	spread := decimal.NewFromFloat(a.Spread).Div(decimal.NewFromInt(100))
	buyPrice, _ := mid.Mul(decimal.NewFromInt(1).Sub(spread)).Float64()
	sellPrice, _ := mid.Mul(decimal.NewFromInt(1).Add(spread)).Float64()

	out := map[string]any{"pair": a.Pair, "current_price": price}
	indeterminate := false

	for _, side := range []struct {
		name  string
		price float64
	}{{"buy", buyPrice}, {"sell", sellPrice}} {
		limit := side.price
		result, err := e.bridge.PlaceOrder(ctx, bridge.PlaceOrderRequest{
			AccountName:   a.Account,
			ConnectorName: a.Connector,
			TradingPair:   a.Pair,
			Side:          side.name,
			OrderType:     "limit",
			Amount:        e.orderSize,
			Price:         &limit,
		})
		if err != nil {
			if bridge.IsTimeout(err) {
				indeterminate = true
			}
			out[side.name+"_order"] = map[string]any{"error": err.Error()}
			continue
		}
		out[side.name+"_order"] = map[string]any{
			"order_id": result.OrderID,
			"price":    limit,
			"amount":   e.orderSize,
		}
		e.addUsage(ctx, scope.ClientID, 1, limit*e.orderSize)
	}
	return out, indeterminate
}

func (e *Executor) placeOrder(ctx context.Context, scope *model.ClientScope, a model.PlaceOrder) (map[string]any, bool) {
	result, err := e.bridge.PlaceOrder(ctx, bridge.PlaceOrderRequest{
		AccountName:   scope.PrimaryAccount(),
		ConnectorName: a.Connector,
		TradingPair:   a.Pair,
		Side:          a.Side,
		OrderType:     a.OrderType,
		Amount:        a.Amount,
		Price:         a.Price,
	})
	if err != nil {
		if bridge.IsTimeout(err) {
			// The service may have accepted the order. Surface it as
			// indeterminate and leave resubmission to a human.
			return map[string]any{"error": err.Error(), "state": "indeterminate"}, true
		}
		return map[string]any{"error": err.Error()}, false
	}

	notional := result.Price * result.Amount
	if notional == 0 && a.Price != nil {
		notional = *a.Price * a.Amount
	}
	e.addUsage(ctx, scope.ClientID, 1, notional)
	return map[string]any{
		"order_id": result.OrderID,
		"status":   result.Status,
		"price":    result.Price,
		"amount":   result.Amount,
	}, false
}

func (e *Executor) cancelOrder(ctx context.Context, a model.CancelOrder) (map[string]any, bool) {
	if err := e.bridge.CancelOrder(ctx, a.Account, a.OrderID); err != nil {
		return map[string]any{"error": err.Error()}, bridge.IsTimeout(err)
	}
	return map[string]any{"order_id": a.OrderID, "status": "cancelled"}, false
}

// generateVolume crosses the book at the current price: a buy and a sell of
// volume/price base units each, producing the requested quote-denominated
// traded volume.
func (e *Executor) generateVolume(ctx context.Context, scope *model.ClientScope, a model.GenerateVolume) (map[string]any, bool) {
	price := e.bridge.GetPrice(ctx, a.Connector, a.Pair)
	if price == 0 {
		return map[string]any{"error": "Failed to get current price"}, false
	}
	amount, _ := decimal.NewFromFloat(a.Volume).Div(decimal.NewFromFloat(price)).Float64()

	out := map[string]any{"pair": a.Pair, "price": price, "requested_volume": a.Volume}
	indeterminate := false
	placed := 0
	for _, side := range []string{"buy", "sell"} {
		limit := price
		result, err := e.bridge.PlaceOrder(ctx, bridge.PlaceOrderRequest{
			AccountName:   a.Account,
			ConnectorName: a.Connector,
			TradingPair:   a.Pair,
			Side:          side,
			OrderType:     "limit",
			Amount:        amount,
			Price:         &limit,
		})
		if err != nil {
			if bridge.IsTimeout(err) {
				indeterminate = true
			}
			out[side+"_order"] = map[string]any{"error": err.Error()}
			continue
		}
		placed++
		out[side+"_order"] = map[string]any{"order_id": result.OrderID, "amount": amount}
	}
	if placed > 0 {
		// Each placed side contributes half of the requested volume.
		e.addUsage(ctx, scope.ClientID, placed, a.Volume*float64(placed)/2)
	}
	return out, indeterminate
}

func (e *Executor) addUsage(ctx context.Context, clientID string, orders int, amount float64) {
	if e.usage == nil || clientID == "" {
		return
	}
	if err := e.usage.AddDailyUsage(ctx, clientID, orders, amount); err != nil {
		logger.Warn("daily usage update failed", "client", clientID, "error", err.Error())
	}
}

func executionOutcome(record model.ActionRecord) string {
	if record.Indeterminate {
		return outcomeIndeterminate
	}
	if record.Execution != nil {
		if _, failed := record.Execution["error"]; failed {
			return outcomeError
		}
	}
	return outcomeOK
}
