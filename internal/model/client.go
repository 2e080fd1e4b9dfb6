package model

import (
	"strings"
	"time"
)

// ClientSettings are the per-client risk overrides stored as JSONB on the
// client row. Zero values mean "use the platform default".
type ClientSettings struct {
	MaxSpread        float64 `json:"max_spread"`
	MaxDailyVolume   float64 `json:"max_daily_volume"`
	ConfirmThreshold float64 `json:"confirm_threshold"`
}

// Client is a platform customer. Everything it owns (credentials, pairs,
// audit records) is keyed by its ID and must never leak across clients.
type Client struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	APIKey    string         `json:"api_key"` // gateway access key
	Status    string         `json:"status"`
	Settings  ClientSettings `json:"settings"`
	CreatedAt time.Time      `json:"created_at"`
}

// AccountSlug derives the execution-service account name for a client
// display name: "Acme Trading" -> "client_acme_trading". The rule is applied
// at provisioning time and at every scope resolution; it is never stored, so
// both sites must agree.
func AccountSlug(displayName string) string {
	slug := strings.ToLower(strings.TrimSpace(displayName))
	slug = strings.ReplaceAll(slug, " ", "_")
	return "client_" + slug
}

// NormalizeExchangeID lowercases an exchange identifier and maps hyphens to
// underscores so "Gate-io" and "gate_io" refer to the same connector.
func NormalizeExchangeID(exchange string) string {
	norm := strings.ToLower(strings.TrimSpace(exchange))
	return strings.ReplaceAll(norm, "-", "_")
}
