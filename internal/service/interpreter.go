package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pipelabs/tradegate/internal/bridge"
	"github.com/pipelabs/tradegate/internal/model"
)

// knownSymbols are bare tokens accepted as a pair shorthand and defaulted to
// the USDT quote, e.g. "check SHARP" means SHARP-USDT.
var knownSymbols = map[string]struct{}{
	"SHARP": {}, "BTC": {}, "ETH": {}, "SOL": {}, "ADA": {},
}

// CommandResult is the structured outcome of one direct command. Error is
// set for unknown verbs, missing arguments and validator denials; Data holds
// the command-specific payload otherwise.
type CommandResult struct {
	Command string               `json:"command,omitempty"`
	Error   string               `json:"error,omitempty"`
	Data    map[string]any       `json:"data,omitempty"`
	Actions []model.ActionRecord `json:"actions,omitempty"`
}

// Interpreter maps a fixed grammar of short imperative commands onto
// TradingActions: check, refresh, price, run volume, pause. Everything that
// touches the execution service flows through the shared executor.
type Interpreter struct {
	exec   *Executor
	bridge *bridge.Client
}

func NewInterpreter(exec *Executor, bridgeClient *bridge.Client) *Interpreter {
	return &Interpreter{exec: exec, bridge: bridgeClient}
}

// Run parses and executes one command within the given scope. An
// unrecognized verb returns a structured unknown-command result without a
// single call to the execution service.
func (i *Interpreter) Run(ctx context.Context, scope *model.ClientScope, command string) *CommandResult {
	lower := strings.ToLower(strings.TrimSpace(command))

	switch {
	case strings.HasPrefix(lower, "check"):
		return i.check(ctx, scope, command)
	case strings.HasPrefix(lower, "refresh"):
		return i.refresh(ctx, scope, command)
	case strings.Contains(lower, "run volume"):
		return i.runVolume(ctx, scope, command)
	case strings.Contains(lower, "pause"):
		return i.pause(ctx, scope)
	case strings.Contains(lower, "price"):
		return i.price(ctx, scope, command)
	default:
		return &CommandResult{Error: fmt.Sprintf("Unknown command: %s", command)}
	}
}

// IsCommand reports whether the message matches the direct-command grammar,
// letting the chat endpoint bypass the language model entirely.
func IsCommand(message string) bool {
	lower := strings.ToLower(message)
	for _, verb := range []string{"check", "refresh", "price", "run volume", "pause"} {
		if strings.Contains(lower, verb) {
			return true
		}
	}
	return false
}

func (i *Interpreter) check(ctx context.Context, scope *model.ClientScope, command string) *CommandResult {
	pair := ExtractPair(command)
	if pair == "" {
		return &CommandResult{Command: "check", Error: "Please specify a trading pair"}
	}
	record := i.exec.Execute(ctx, scope, model.CheckStatus{Pair: pair, Account: scope.PrimaryAccount()})
	return resultFromRecord("check", record)
}

func (i *Interpreter) refresh(ctx context.Context, scope *model.ClientScope, command string) *CommandResult {
	pair := ExtractPair(command)
	if pair == "" {
		return &CommandResult{Command: "refresh", Error: "Please specify a trading pair"}
	}
	record := i.exec.Execute(ctx, scope, model.RefreshSpread{
		Pair:      pair,
		Account:   scope.PrimaryAccount(),
		Connector: scope.PrimaryExchange(),
		Spread:    scope.MaxSpread,
	})
	return resultFromRecord("refresh", record)
}

func (i *Interpreter) price(ctx context.Context, scope *model.ClientScope, command string) *CommandResult {
	pair := ExtractPair(command)
	if pair == "" {
		return &CommandResult{Command: "price", Error: "Please specify a trading pair"}
	}
	record := i.exec.Execute(ctx, scope, model.GetPrice{Connector: scope.PrimaryExchange(), Pair: pair})
	return resultFromRecord("price", record)
}

func (i *Interpreter) runVolume(ctx context.Context, scope *model.ClientScope, command string) *CommandResult {
	pair := ExtractPair(command)
	if pair == "" {
		return &CommandResult{Command: "run volume", Error: "Please specify a trading pair"}
	}
	volume, ok := extractAmount(command)
	if !ok {
		return &CommandResult{Command: "run volume", Error: "Please specify a volume amount, e.g. 'run volume 5000 BTC-USDT'"}
	}
	record := i.exec.Execute(ctx, scope, model.GenerateVolume{
		Pair:      pair,
		Account:   scope.PrimaryAccount(),
		Connector: scope.PrimaryExchange(),
		Volume:    volume,
	})
	return resultFromRecord("run volume", record)
}

// pause cancels every open order on the client's account, one cancel action
// per order so each shows up in the audit trail individually.
func (i *Interpreter) pause(ctx context.Context, scope *model.ClientScope) *CommandResult {
	account := scope.PrimaryAccount()
	open := i.bridge.GetOrders(ctx, account, "")

	result := &CommandResult{Command: "pause", Data: map[string]any{"open_orders": len(open)}}
	cancelled := 0
	for _, order := range open {
		record := i.exec.Execute(ctx, scope, model.CancelOrder{Account: account, OrderID: order.OrderID})
		result.Actions = append(result.Actions, record)
		if record.Validation == outcomeAllowed && !record.Indeterminate {
			if _, failed := record.Execution["error"]; !failed {
				cancelled++
			}
		}
	}
	result.Data["cancelled"] = cancelled
	return result
}

// ExtractPair scans the command words for a slash- or hyphen-joined pair, or
// a known bare symbol which it pairs with USDT. Slashes normalize to
// hyphens.
func ExtractPair(command string) string {
	for _, word := range strings.Fields(strings.ToUpper(command)) {
		if strings.Contains(word, "/") || strings.Contains(word, "-") {
			return strings.ReplaceAll(word, "/", "-")
		}
		if _, ok := knownSymbols[word]; ok {
			return word + "-USDT"
		}
	}
	return ""
}

func extractAmount(command string) (float64, bool) {
	for _, word := range strings.Fields(command) {
		trimmed := strings.TrimPrefix(word, "$")
		if value, err := strconv.ParseFloat(trimmed, 64); err == nil && value > 0 {
			return value, true
		}
	}
	return 0, false
}

func resultFromRecord(command string, record model.ActionRecord) *CommandResult {
	result := &CommandResult{Command: command, Actions: []model.ActionRecord{record}}
	if record.Validation != outcomeAllowed {
		result.Error = record.Validation
		return result
	}
	result.Data = record.Execution
	if record.Execution != nil {
		if msg, failed := record.Execution["error"]; failed {
			result.Error = fmt.Sprintf("%v", msg)
		}
	}
	return result
}
