package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pipelabs/tradegate/internal/model"
	"github.com/pipelabs/tradegate/internal/service"
)

const ContextAuditLog = "audit_log"

// bodyLogWriter duplicates the response into a buffer for the audit record.
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyLogWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// AuditMiddleware records every request as an audit entry: method, path,
// redacted request and response bodies, latency, and any business context
// handlers attach via AddAuditContext. The entry is enqueued asynchronously
// after the response is written.
func AuditMiddleware(auditSvc *service.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := uuid.New().String()
		c.Header("X-Request-ID", reqID)

		var reqBodyBytes []byte
		if c.Request.Body != nil {
			reqBodyBytes, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(reqBodyBytes))
		}

		entry := &model.AuditLog{
			ID:        reqID,
			Method:    c.Request.Method,
			Path:      c.Request.URL.Path,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			CreatedAt: start,
			Context:   make(map[string]interface{}),
		}
		c.Set(ContextAuditLog, entry)

		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		if client := ClientFromContext(c); client != nil {
			entry.TenantID = client.ID
		}
		entry.RequestBody = redactAuditBody(c.Request.URL.Path, reqBodyBytes)
		entry.StatusCode = c.Writer.Status()
		entry.ResponseBody = redactAuditBody(c.Request.URL.Path, blw.body.Bytes())
		entry.LatencyMs = time.Since(start).Milliseconds()

		auditSvc.Log(entry)
	}
}

// AddAuditContext lets handlers and services attach business context
// (actions taken, provisioning warnings) to the request's audit entry.
func AddAuditContext(c *gin.Context, key string, value interface{}) {
	if val, exists := c.Get(ContextAuditLog); exists {
		if entry, ok := val.(*model.AuditLog); ok {
			entry.Context[key] = value
		}
	}
}

func redactAuditBody(path string, body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if !isSensitivePath(path) {
		return string(body)
	}
	redacted, ok := redactJSON(body)
	if !ok {
		return "[redacted]"
	}
	return string(redacted)
}

func isSensitivePath(path string) bool {
	switch {
	case strings.HasPrefix(path, "/v1/credentials"):
		return true
	case strings.HasPrefix(path, "/v1/orders"):
		return true
	case strings.HasPrefix(path, "/v1/chat"):
		return true
	default:
		return false
	}
}

func redactJSON(body []byte) ([]byte, bool) {
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, false
	}
	redactValue(&data)
	out, err := json.Marshal(data)
	if err != nil {
		return nil, false
	}
	return out, true
}

func redactValue(v *interface{}) {
	switch raw := (*v).(type) {
	case map[string]interface{}:
		for key, val := range raw {
			if isSensitiveKey(key) {
				raw[key] = "***"
				continue
			}
			vv := val
			redactValue(&vv)
			raw[key] = vv
		}
	case []interface{}:
		for i, val := range raw {
			vv := val
			redactValue(&vv)
			raw[i] = vv
		}
	}
}

func isSensitiveKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "api_key",
		"api_secret",
		"passphrase",
		"api_passphrase",
		"secret",
		"private_key",
		"master_secret",
		"admin_key",
		"gateway_key":
		return true
	default:
		return false
	}
}
