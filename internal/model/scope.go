package model

import "strings"

// ClientScope is the resolved set of accounts, pairs, exchanges and risk
// limits a client's requests are checked against. It is derived per request
// from persisted rows owned by that client and never cached across requests.
type ClientScope struct {
	ClientID         string   `json:"client_id"`
	ClientName       string   `json:"client_name"`
	AllowedAccounts  []string `json:"allowed_accounts"`
	AllowedPairs     []string `json:"allowed_pairs"`
	AllowedExchanges []string `json:"allowed_exchanges"`
	MaxSpread        float64  `json:"max_spread"`
	MaxDailyVolume   float64  `json:"max_daily_volume"`
	ConfirmThreshold float64  `json:"confirm_threshold"`
}

func (s *ClientScope) AllowsAccount(account string) bool {
	return containsFold(s.AllowedAccounts, account)
}

func (s *ClientScope) AllowsPair(pair string) bool {
	return containsFold(s.AllowedPairs, pair)
}

func (s *ClientScope) AllowsExchange(exchange string) bool {
	return containsFold(s.AllowedExchanges, NormalizeExchangeID(exchange))
}

// PrimaryAccount returns the client's execution account. The scope carries
// exactly one today; the slice exists so the wire shape survives a future
// multi-account model.
func (s *ClientScope) PrimaryAccount() string {
	if len(s.AllowedAccounts) == 0 {
		return ""
	}
	return s.AllowedAccounts[0]
}

// PrimaryExchange returns the first allowed exchange, used when a direct
// command names a pair but no connector.
func (s *ClientScope) PrimaryExchange() string {
	if len(s.AllowedExchanges) == 0 {
		return ""
	}
	return s.AllowedExchanges[0]
}

func containsFold(list []string, want string) bool {
	for _, item := range list {
		if strings.EqualFold(item, want) {
			return true
		}
	}
	return false
}
