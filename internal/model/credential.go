package model

import "time"

// ExchangeCredential is a client's API key pair for one exchange. The key,
// secret and passphrase columns hold vault ciphertext; they are opaque to
// every component except the vault itself.
type ExchangeCredential struct {
	ID                  string    `json:"id"`
	ClientID            string    `json:"client_id"`
	Exchange            string    `json:"exchange"` // normalized: lowercase, hyphens -> underscores
	Label               string    `json:"label,omitempty"`
	APIKeyEncrypted     string    `json:"-"`
	APISecretEncrypted  string    `json:"-"`
	PassphraseEncrypted string    `json:"-"`
	IsActive            bool      `json:"is_active"`
	IsTestnet           bool      `json:"is_testnet"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// TradingPair is one pair a client is allowed to trade, bound to an
// exchange connector.
type TradingPair struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Exchange  string    `json:"exchange"`
	Pair      string    `json:"pair"` // e.g. BTC-USDT
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ProvisioningResult reports one attempt to make a credential usable on the
// execution service. It is ephemeral: surfaced to the caller and logged,
// never persisted.
type ProvisioningResult struct {
	Success     bool   `json:"success"`
	AccountName string `json:"account_name"`
	Connector   string `json:"connector"`
	ErrorKind   string `json:"error_kind,omitempty"` // timeout | http | unknown
	Message     string `json:"message"`
}
