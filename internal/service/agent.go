package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pipelabs/tradegate/internal/config"
	"github.com/pipelabs/tradegate/internal/llm"
	"github.com/pipelabs/tradegate/internal/model"
	"github.com/pipelabs/tradegate/internal/pkg/logger"
	"github.com/pipelabs/tradegate/internal/pkg/metrics"
)

const systemPromptTemplate = `You are a trading assistant for %s on the Pipe Labs platform.

## Your Scope
- Client: %s
- Accounts: %s
- Trading Pairs: %s
- Exchanges: %s

## Allowed Actions
- Check balances and positions
- Place spread orders (max spread %g%%)
- Place volume orders (max $%g/day)
- Cancel orders
- View prices, open orders and trade history

## NOT Allowed
- Access other clients' data
- Withdraw funds
- Change API keys
- Exceed daily limits

Always confirm before placing orders over $%g. Use the provided tools for
every account, order or price operation; never invent results.`

const limitReachedReply = "Tool-use limit reached for this request. The actions executed so far are listed below; send a follow-up message to continue."

const internalErrorReply = "Something went wrong while processing your request. No further actions were taken; please try again."

// agent loop states. The loop is a fixed two-state machine so a model that
// keeps asking for tools can never trap a request: every transition either
// advances toward done or consumes one of the bounded tool rounds.
type agentState int

const (
	stateAwaitingModel agentState = iota
	stateExecutingTools
	stateDone
)

// ChatResult is the uniform envelope both chat paths return: the text shown
// to the client plus every action executed on the way, with validation
// outcome and execution result.
type ChatResult struct {
	Response     string               `json:"response"`
	ActionsTaken []model.ActionRecord `json:"actions_taken"`
}

// Agent answers natural-language messages with a tool-calling model. Direct
// commands bypass the model entirely and go through the interpreter. Every
// tool call converts to a TradingAction and runs through the shared
// validator and executor; the model is a planner, never an authority.
type Agent struct {
	llm    *llm.Client
	exec   *Executor
	interp *Interpreter
	cfg    config.AgentConfig
}

func NewAgent(llmClient *llm.Client, exec *Executor, interp *Interpreter, cfg config.AgentConfig) *Agent {
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = 8
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return &Agent{llm: llmClient, exec: exec, interp: interp, cfg: cfg}
}

func (a *Agent) Chat(ctx context.Context, scope *model.ClientScope, message string, history []llm.Message) (*ChatResult, error) {
	if IsCommand(message) {
		cmd := a.interp.Run(ctx, scope, message)
		return &ChatResult{
			Response:     formatCommandResponse(cmd),
			ActionsTaken: cmd.Actions,
		}, nil
	}

	if !a.llm.Configured() {
		return &ChatResult{
			Response: "Chat model is not configured. Set the agent API key to enable natural-language requests; direct commands (check, refresh, price, run volume, pause) still work.",
		}, nil
	}

	messages := append(append([]llm.Message{}, history...), llm.TextMessage(llm.RoleUser, message))
	tools := toolManifest()
	system := buildSystemPrompt(scope)

	var actions []model.ActionRecord
	var pending *llm.MessagesResponse
	result := &ChatResult{}
	rounds := 0
	state := stateAwaitingModel

	for state != stateDone {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch state {
		case stateAwaitingModel:
			resp, err := a.llm.CreateMessage(ctx, llm.MessagesRequest{
				Model:     a.cfg.Model,
				MaxTokens: a.cfg.MaxTokens,
				System:    system,
				Messages:  messages,
				Tools:     tools,
			})
			if err != nil {
				// Raw error stays in the logs; the client sees a generic
				// message so upstream details never leak into chat.
				logger.Error("agent model call failed", "client", scope.ClientID, "error", err.Error())
				result.Response = internalErrorReply
				state = stateDone
				break
			}
			if resp.StopReason != llm.StopToolUse {
				result.Response = resp.Text()
				state = stateDone
				break
			}
			pending = resp
			state = stateExecutingTools

		case stateExecutingTools:
			if rounds >= a.cfg.MaxToolRounds {
				result.Response = limitReachedReply
				state = stateDone
				break
			}
			rounds++
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: pending.Content})
			messages = append(messages, a.runTools(ctx, scope, pending.ToolUses(), &actions))
			pending = nil
			state = stateAwaitingModel
		}
	}

	metrics.AgentToolRounds.Observe(float64(rounds))
	result.ActionsTaken = actions
	return result, nil
}

// runTools executes every tool call of one model turn and packs the results
// into a single user message, as the Messages API requires.
func (a *Agent) runTools(ctx context.Context, scope *model.ClientScope, calls []llm.ContentBlock, actions *[]model.ActionRecord) llm.Message {
	results := make([]llm.ContentBlock, 0, len(calls))
	for _, call := range calls {
		action, err := actionFromTool(call.Name, call.Input)
		if err != nil {
			results = append(results, llm.ContentBlock{
				Type:      "tool_result",
				ToolUseID: call.ID,
				Content:   err.Error(),
				IsError:   true,
			})
			continue
		}

		record := a.exec.Execute(ctx, scope, action)
		*actions = append(*actions, record)
		results = append(results, llm.ContentBlock{
			Type:      "tool_result",
			ToolUseID: call.ID,
			Content:   toolResultContent(record),
		})
	}
	return llm.Message{Role: llm.RoleUser, Content: results}
}

// toolResultContent renders an action record for the model. Denials go back
// verbatim so the model can explain them; execution payloads go back as
// JSON.
func toolResultContent(record model.ActionRecord) string {
	if record.Validation != outcomeAllowed {
		return record.Validation
	}
	payload := map[string]any{"result": record.Execution}
	if record.Indeterminate {
		payload["state"] = "indeterminate"
		payload["note"] = "The execution service timed out; the order may or may not exist. Do not retry."
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "execution result could not be serialized"
	}
	return string(raw)
}

func actionFromTool(name string, input json.RawMessage) (model.TradingAction, error) {
	switch model.ActionKind(name) {
	case model.KindCheckStatus:
		var a model.CheckStatus
		if err := json.Unmarshal(input, &a); err != nil {
			return nil, fmt.Errorf("malformed %s input: %v", name, err)
		}
		return a, nil
	case model.KindRefreshSpread:
		var a model.RefreshSpread
		if err := json.Unmarshal(input, &a); err != nil {
			return nil, fmt.Errorf("malformed %s input: %v", name, err)
		}
		return a, nil
	case model.KindGetPrice:
		var a model.GetPrice
		if err := json.Unmarshal(input, &a); err != nil {
			return nil, fmt.Errorf("malformed %s input: %v", name, err)
		}
		return a, nil
	case model.KindPlaceOrder:
		var a model.PlaceOrder
		if err := json.Unmarshal(input, &a); err != nil {
			return nil, fmt.Errorf("malformed %s input: %v", name, err)
		}
		return a, nil
	case model.KindCancelOrder:
		var a model.CancelOrder
		if err := json.Unmarshal(input, &a); err != nil {
			return nil, fmt.Errorf("malformed %s input: %v", name, err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

func buildSystemPrompt(scope *model.ClientScope) string {
	return fmt.Sprintf(systemPromptTemplate,
		scope.ClientName,
		scope.ClientName,
		strings.Join(scope.AllowedAccounts, ", "),
		strings.Join(scope.AllowedPairs, ", "),
		strings.Join(scope.AllowedExchanges, ", "),
		scope.MaxSpread,
		scope.MaxDailyVolume,
		scope.ConfirmThreshold,
	)
}

func toolManifest() []llm.Tool {
	str := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	num := func(desc string) map[string]any {
		return map[string]any{"type": "number", "description": desc}
	}
	schema := func(required []string, props map[string]any) map[string]any {
		return map[string]any{"type": "object", "properties": props, "required": required}
	}

	return []llm.Tool{
		{
			Name:        string(model.KindCheckStatus),
			Description: "Show balances and open orders for a trading pair on the client's account.",
			InputSchema: schema([]string{"pair", "account"}, map[string]any{
				"pair":    str("Trading pair, e.g. BTC-USDT"),
				"account": str("Account identifier from the client's scope"),
			}),
		},
		{
			Name:        string(model.KindRefreshSpread),
			Description: "Cancel-free spread refresh: place one buy and one sell limit order around the current price.",
			InputSchema: schema([]string{"pair", "account", "connector", "spread"}, map[string]any{
				"pair":      str("Trading pair, e.g. BTC-USDT"),
				"account":   str("Account identifier from the client's scope"),
				"connector": str("Exchange connector, e.g. binance"),
				"spread":    num("Spread percent, e.g. 0.5"),
			}),
		},
		{
			Name:        string(model.KindGetPrice),
			Description: "Get the current market price of a pair on an exchange.",
			InputSchema: schema([]string{"connector", "pair"}, map[string]any{
				"connector": str("Exchange connector, e.g. binance"),
				"pair":      str("Trading pair, e.g. BTC-USDT"),
			}),
		},
		{
			Name:        string(model.KindPlaceOrder),
			Description: "Place a single order on the client's account.",
			InputSchema: schema([]string{"connector", "pair", "side", "amount", "order_type"}, map[string]any{
				"connector":  str("Exchange connector, e.g. binance"),
				"pair":       str("Trading pair, e.g. BTC-USDT"),
				"side":       str("buy or sell"),
				"amount":     num("Order amount in base units"),
				"order_type": str("limit or market"),
				"price":      num("Limit price; required for limit orders"),
			}),
		},
		{
			Name:        string(model.KindCancelOrder),
			Description: "Cancel one open order by id.",
			InputSchema: schema([]string{"account", "order_id"}, map[string]any{
				"account":  str("Account identifier from the client's scope"),
				"order_id": str("Order id as returned by the execution service"),
			}),
		},
	}
}

// formatCommandResponse renders a CommandResult as chat text.
func formatCommandResponse(cmd *CommandResult) string {
	if cmd.Error != "" {
		return cmd.Error
	}
	switch cmd.Command {
	case "price":
		return fmt.Sprintf("%v: $%v", cmd.Data["pair"], cmd.Data["price"])
	case "pause":
		return fmt.Sprintf("Paused: cancelled %v of %v open orders.", cmd.Data["cancelled"], cmd.Data["open_orders"])
	default:
		raw, err := json.Marshal(cmd.Data)
		if err != nil {
			return "done"
		}
		return fmt.Sprintf("%s result: %s", cmd.Command, raw)
	}
}
