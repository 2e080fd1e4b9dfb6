package model

import "time"

// AuditLog is one request-level audit record. The Context map carries
// business context (actions taken, provisioning warnings, upstream errors)
// added by handlers and services during the request.
type AuditLog struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`

	RequestBody  string `json:"request_body"`  // redacted
	StatusCode   int    `json:"status_code"`
	ResponseBody string `json:"response_body"` // redacted
	LatencyMs    int64  `json:"latency_ms"`

	Context map[string]interface{} `json:"context"`

	CreatedAt time.Time `json:"created_at"`
}

// ChatTurn is one persisted conversation turn, with the actions the agent
// executed while producing it.
type ChatTurn struct {
	ID        string         `json:"id"`
	ClientID  string         `json:"client_id"`
	Role      string         `json:"role"` // user | assistant
	Content   string         `json:"content"`
	Actions   []ActionRecord `json:"actions,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
