package service

import (
	"context"
	"fmt"

	"github.com/pipelabs/tradegate/internal/model"
	"github.com/pipelabs/tradegate/internal/pkg/apperrors"
	"github.com/pipelabs/tradegate/internal/pkg/metrics"
)

// Validator checks one TradingAction against a resolved scope. It returns
// nil when the action is allowed and a SCOPE_DENIED AppError naming the
// offending field otherwise. It never calls the execution service.
type Validator struct {
	usage UsageRepo
}

func NewValidator(usage UsageRepo) *Validator {
	return &Validator{usage: usage}
}

func (v *Validator) Validate(ctx context.Context, scope *model.ClientScope, action model.TradingAction) error {
	switch a := action.(type) {
	case model.CheckStatus:
		if err := v.checkAccount(scope, a.Account); err != nil {
			return err
		}
		return v.checkPair(scope, a.Pair)

	case model.RefreshSpread:
		if err := v.checkAccount(scope, a.Account); err != nil {
			return err
		}
		if err := v.checkPair(scope, a.Pair); err != nil {
			return err
		}
		if err := v.checkExchange(scope, a.Connector); err != nil {
			return err
		}
		if a.Spread > scope.MaxSpread {
			return deny("spread", fmt.Sprintf("Spread %g%% exceeds maximum %g%%", a.Spread, scope.MaxSpread))
		}
		return nil

	case model.GetPrice:
		if err := v.checkExchange(scope, a.Connector); err != nil {
			return err
		}
		return v.checkPair(scope, a.Pair)

	case model.PlaceOrder:
		if err := v.checkExchange(scope, a.Connector); err != nil {
			return err
		}
		if err := v.checkPair(scope, a.Pair); err != nil {
			return err
		}
		if a.Side != "buy" && a.Side != "sell" {
			return deny("side", fmt.Sprintf("Invalid side '%s': must be buy or sell", a.Side))
		}
		if a.Amount <= 0 {
			return deny("amount", "Order amount must be positive")
		}
		if a.OrderType != "limit" && a.OrderType != "market" {
			return deny("order_type", fmt.Sprintf("Invalid order type '%s': must be limit or market", a.OrderType))
		}
		if a.OrderType == "limit" && (a.Price == nil || *a.Price <= 0) {
			return deny("price", "Limit orders require a positive price")
		}
		return nil

	case model.CancelOrder:
		if a.OrderID == "" {
			return deny("order_id", "Cancel requires an order id")
		}
		return v.checkAccount(scope, a.Account)

	case model.GenerateVolume:
		if err := v.checkAccount(scope, a.Account); err != nil {
			return err
		}
		if err := v.checkPair(scope, a.Pair); err != nil {
			return err
		}
		if err := v.checkExchange(scope, a.Connector); err != nil {
			return err
		}
		if a.Volume <= 0 {
			return deny("volume", "Volume must be positive")
		}
		return v.checkDailyVolume(ctx, scope, a.Volume)

	default:
		return deny("action", fmt.Sprintf("Unsupported action kind '%s'", action.Kind()))
	}
}

func (v *Validator) checkAccount(scope *model.ClientScope, account string) error {
	if account == "" {
		return deny("account", "Action names no account")
	}
	if !scope.AllowsAccount(account) {
		return deny("account", fmt.Sprintf("Access denied: Account '%s' not in your scope", account))
	}
	return nil
}

func (v *Validator) checkPair(scope *model.ClientScope, pair string) error {
	if pair == "" {
		return deny("pair", "Action names no trading pair")
	}
	if !scope.AllowsPair(pair) {
		return deny("pair", fmt.Sprintf("Access denied: Trading pair '%s' not in your scope", pair))
	}
	return nil
}

func (v *Validator) checkExchange(scope *model.ClientScope, connector string) error {
	if connector == "" {
		return deny("exchange", "Action names no exchange connector")
	}
	if !scope.AllowsExchange(connector) {
		return deny("exchange", fmt.Sprintf("Access denied: Exchange '%s' not in your scope", connector))
	}
	return nil
}

// checkDailyVolume denies when the requested volume plus the volume already
// traded today would exceed the client's daily limit. A usage-store read
// failure fails closed: volume generation is deferrable, an over-limit
// trade is not.
func (v *Validator) checkDailyVolume(ctx context.Context, scope *model.ClientScope, requested float64) error {
	used := 0.0
	if v.usage != nil {
		_, volume, err := v.usage.GetDailyUsage(ctx, scope.ClientID)
		if err != nil {
			return deny("volume", "Daily volume usage is unavailable, try again shortly")
		}
		used = volume
	}
	if requested+used > scope.MaxDailyVolume {
		return deny("volume", fmt.Sprintf("Volume $%g exceeds daily limit $%g ($%g already used today)",
			requested, scope.MaxDailyVolume, used))
	}
	return nil
}

func deny(field, reason string) error {
	metrics.ScopeDenials.WithLabelValues(field).Inc()
	return apperrors.NewScopeDenied(reason)
}
