// Package llm is a minimal typed client for the Anthropic-style Messages
// API: system prompt, conversation turns, tool manifest, tool_use /
// tool_result content blocks. Only the subset the agent loop needs is
// modeled.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	apiVersion    = "2023-06-01"
	StopToolUse   = "tool_use"
	StopEndTurn   = "end_turn"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ContentBlock struct {
	Type string `json:"type"` // text | tool_use | tool_result

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

func TextMessage(role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{{Type: "text", Text: text}}}
}

type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type MessagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	Tools     []Tool    `json:"tools,omitempty"`
}

type MessagesResponse struct {
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

// Text concatenates all text blocks of the response.
func (r *MessagesResponse) Text() string {
	var out string
	for _, block := range r.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out
}

// ToolUses returns the tool-call blocks the model requested this turn.
func (r *MessagesResponse) ToolUses() []ContentBlock {
	var calls []ContentBlock
	for _, block := range r.Content {
		if block.Type == "tool_use" {
			calls = append(calls, block)
		}
	}
	return calls
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 120 * time.Second},
	}
}

// Configured reports whether an API key is present. The chat endpoint
// answers with a setup hint instead of failing when it is not.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

func (c *Client) CreateMessage(ctx context.Context, req MessagesRequest) (*MessagesResponse, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("messages request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("messages response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		excerpt := string(body)
		if len(excerpt) > 256 {
			excerpt = excerpt[:256]
		}
		return nil, fmt.Errorf("messages api status %d: %s", resp.StatusCode, excerpt)
	}
	var out MessagesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode messages response: %w", err)
	}
	return &out, nil
}
