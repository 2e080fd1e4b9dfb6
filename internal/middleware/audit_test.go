package middleware

import (
	"encoding/json"
	"testing"
)

func TestRedactAuditBodyCredentials(t *testing.T) {
	body := []byte(`{"exchange":"binance","api_key":"AKIA123","api_secret":"s3cr3t","passphrase":"p","nested":{"api_key":"inner"}}`)
	out := redactAuditBody("/v1/credentials", body)

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		t.Fatalf("invalid json output: %v", err)
	}
	if data["api_key"] == "AKIA123" || data["api_secret"] == "s3cr3t" || data["passphrase"] == "p" {
		t.Fatalf("credentials not redacted: %s", out)
	}
	if data["exchange"] != "binance" {
		t.Fatalf("non-sensitive field mangled: %s", out)
	}
	if nested, ok := data["nested"].(map[string]interface{}); ok {
		if nested["api_key"] == "inner" {
			t.Fatalf("nested key not redacted")
		}
	}
}

func TestRedactAuditBodyNonSensitivePath(t *testing.T) {
	body := []byte(`{"ok":true}`)
	if out := redactAuditBody("/health", body); out != string(body) {
		t.Fatalf("unexpected redaction on non-sensitive path")
	}
}

func TestRedactAuditBodyInvalidJSON(t *testing.T) {
	if out := redactAuditBody("/v1/credentials", []byte("not-json")); out != "[redacted]" {
		t.Fatalf("expected redacted placeholder for invalid json")
	}
}
