package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pipelabs/tradegate/internal/bridge"
	"github.com/pipelabs/tradegate/internal/config"
	"github.com/pipelabs/tradegate/internal/llm"
)

// scriptedModel serves /v1/messages from a fixed list of responses and
// captures every request body it sees.
type scriptedModel struct {
	responses []llm.MessagesResponse
	requests  []llm.MessagesRequest
	server    *httptest.Server
}

func newScriptedModel(t *testing.T, responses ...llm.MessagesResponse) *scriptedModel {
	t.Helper()
	m := &scriptedModel{responses: responses}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req llm.MessagesRequest
		json.NewDecoder(r.Body).Decode(&req)
		m.requests = append(m.requests, req)

		idx := len(m.requests) - 1
		if idx >= len(m.responses) {
			idx = len(m.responses) - 1
		}
		json.NewEncoder(w).Encode(m.responses[idx])
	}))
	t.Cleanup(m.server.Close)
	return m
}

func toolUseResponse(id, name string, input map[string]any) llm.MessagesResponse {
	raw, _ := json.Marshal(input)
	return llm.MessagesResponse{
		StopReason: llm.StopToolUse,
		Content: []llm.ContentBlock{
			{Type: "tool_use", ID: id, Name: name, Input: raw},
		},
	}
}

func textResponse(text string) llm.MessagesResponse {
	return llm.MessagesResponse{
		StopReason: llm.StopEndTurn,
		Content:    []llm.ContentBlock{{Type: "text", Text: text}},
	}
}

func newTestAgent(t *testing.T, f *fakeExecution, m *scriptedModel, maxRounds int) *Agent {
	t.Helper()
	bridgeClient := bridge.New(f.server.URL, 2*time.Second)
	exec := NewExecutor(bridgeClient, NewValidator(NewMemoryUsageRepo()), NewMemoryUsageRepo(), 1600)
	interp := NewInterpreter(exec, bridgeClient)
	return NewAgent(llm.New(m.server.URL, "test-key"), exec, interp, config.AgentConfig{
		Model:         "test-model",
		MaxTokens:     1024,
		MaxToolRounds: maxRounds,
	})
}

func TestAgentDirectCommandBypassesModel(t *testing.T) {
	f := newFakeExecution(t)
	m := newScriptedModel(t, textResponse("should not be called"))
	agent := newTestAgent(t, f, m, 8)

	result, err := agent.Chat(context.Background(), testScope(), "check BTC-USDT", nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if len(m.requests) != 0 {
		t.Fatalf("model called %d times for a direct command", len(m.requests))
	}
	if len(result.ActionsTaken) != 1 {
		t.Fatalf("expected 1 action, got %d", len(result.ActionsTaken))
	}
}

func TestAgentToolLoop(t *testing.T) {
	f := newFakeExecution(t)
	m := newScriptedModel(t,
		toolUseResponse("t1", "get_price", map[string]any{"connector": "binance", "pair": "BTC-USDT"}),
		textResponse("BTC-USDT trades at $100."),
	)
	agent := newTestAgent(t, f, m, 8)

	result, err := agent.Chat(context.Background(), testScope(), "what does bitcoin cost right now?", nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if result.Response != "BTC-USDT trades at $100." {
		t.Fatalf("unexpected response: %q", result.Response)
	}
	if len(result.ActionsTaken) != 1 {
		t.Fatalf("expected 1 action, got %d", len(result.ActionsTaken))
	}
	if result.ActionsTaken[0].Validation != "allowed" {
		t.Fatalf("action not allowed: %s", result.ActionsTaken[0].Validation)
	}

	// The second model request must carry the tool result back.
	second := m.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != llm.RoleUser || last.Content[0].Type != "tool_result" {
		t.Fatalf("tool result not returned to the model")
	}
}

func TestAgentToolLoopCap(t *testing.T) {
	f := newFakeExecution(t)
	// The model keeps asking for tools forever.
	m := newScriptedModel(t,
		toolUseResponse("t1", "get_price", map[string]any{"connector": "binance", "pair": "BTC-USDT"}),
	)
	agent := newTestAgent(t, f, m, 3)

	result, err := agent.Chat(context.Background(), testScope(), "tell me something interesting", nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(result.Response, "Tool-use limit reached") {
		t.Fatalf("expected limit message, got %q", result.Response)
	}
	if len(result.ActionsTaken) != 3 {
		t.Fatalf("expected 3 actions (one per round), got %d", len(result.ActionsTaken))
	}
}

func TestAgentToolDenialGoesBackToModel(t *testing.T) {
	f := newFakeExecution(t)
	m := newScriptedModel(t,
		toolUseResponse("t1", "place_order", map[string]any{
			"connector": "binance", "pair": "DOGE-USDT", "side": "buy",
			"amount": 1.0, "order_type": "market",
		}),
		textResponse("That pair is outside your scope."),
	)
	agent := newTestAgent(t, f, m, 8)

	result, err := agent.Chat(context.Background(), testScope(), "buy me some doge please", nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if len(result.ActionsTaken) != 1 {
		t.Fatalf("expected 1 action, got %d", len(result.ActionsTaken))
	}
	if !strings.Contains(result.ActionsTaken[0].Validation, "DOGE-USDT") {
		t.Fatalf("denial does not name the pair: %s", result.ActionsTaken[0].Validation)
	}
	// No order may reach the execution service.
	if len(f.orders) != 0 {
		t.Fatalf("denied order reached the bridge")
	}
	// The denial text is the tool result.
	second := m.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if !strings.Contains(last.Content[0].Content, "DOGE-USDT") {
		t.Fatalf("tool result does not carry the denial: %s", last.Content[0].Content)
	}
}

func TestAgentModelErrorRedacted(t *testing.T) {
	f := newFakeExecution(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"internal: upstream shard 7 on fire"}`, http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	bridgeClient := bridge.New(f.server.URL, 2*time.Second)
	exec := NewExecutor(bridgeClient, NewValidator(NewMemoryUsageRepo()), NewMemoryUsageRepo(), 1600)
	agent := NewAgent(llm.New(server.URL, "test-key"), exec, NewInterpreter(exec, bridgeClient), config.AgentConfig{
		Model: "test-model", MaxTokens: 1024, MaxToolRounds: 8,
	})

	result, err := agent.Chat(context.Background(), testScope(), "hello there", nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if strings.Contains(result.Response, "shard") {
		t.Fatalf("internal error leaked into the reply: %q", result.Response)
	}
	if result.Response != internalErrorReply {
		t.Fatalf("unexpected reply: %q", result.Response)
	}
}

func TestAgentUnconfigured(t *testing.T) {
	f := newFakeExecution(t)
	bridgeClient := bridge.New(f.server.URL, 2*time.Second)
	exec := NewExecutor(bridgeClient, NewValidator(NewMemoryUsageRepo()), NewMemoryUsageRepo(), 1600)
	agent := NewAgent(llm.New("http://unused", ""), exec, NewInterpreter(exec, bridgeClient), config.AgentConfig{})

	result, err := agent.Chat(context.Background(), testScope(), "hello there", nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(result.Response, "not configured") {
		t.Fatalf("expected setup hint, got %q", result.Response)
	}
}
