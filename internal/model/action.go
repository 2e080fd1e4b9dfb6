package model

type ActionKind string

const (
	KindCheckStatus    ActionKind = "check_status"
	KindRefreshSpread  ActionKind = "refresh_spread"
	KindGetPrice       ActionKind = "get_price"
	KindPlaceOrder     ActionKind = "place_order"
	KindCancelOrder    ActionKind = "cancel_order"
	KindGenerateVolume ActionKind = "generate_volume"
)

// TradingAction is a closed set of variants. Each variant statically carries
// every field its validation rules need, so a missing field can never skip a
// check the way an open key-value payload could.
type TradingAction interface {
	Kind() ActionKind
}

type CheckStatus struct {
	Pair    string `json:"pair"`
	Account string `json:"account"`
}

func (CheckStatus) Kind() ActionKind { return KindCheckStatus }

type RefreshSpread struct {
	Pair      string  `json:"pair"`
	Account   string  `json:"account"`
	Connector string  `json:"connector"`
	Spread    float64 `json:"spread"` // percent, e.g. 0.5
}

func (RefreshSpread) Kind() ActionKind { return KindRefreshSpread }

type GetPrice struct {
	Connector string `json:"connector"`
	Pair      string `json:"pair"`
}

func (GetPrice) Kind() ActionKind { return KindGetPrice }

type PlaceOrder struct {
	Connector string   `json:"connector"`
	Pair      string   `json:"pair"`
	Side      string   `json:"side"` // buy | sell
	Amount    float64  `json:"amount"`
	OrderType string   `json:"order_type"` // limit | market
	Price     *float64 `json:"price,omitempty"`
}

func (PlaceOrder) Kind() ActionKind { return KindPlaceOrder }

type CancelOrder struct {
	Account string `json:"account"`
	OrderID string `json:"order_id"`
}

func (CancelOrder) Kind() ActionKind { return KindCancelOrder }

type GenerateVolume struct {
	Pair      string  `json:"pair"`
	Account   string  `json:"account"`
	Connector string  `json:"connector"`
	Volume    float64 `json:"volume"` // quote-denominated notional
}

func (GenerateVolume) Kind() ActionKind { return KindGenerateVolume }

// ActionRecord is the audit shape of one executed (or denied) action: what
// was attempted, whether the validator let it through, and what the bridge
// returned.
type ActionRecord struct {
	Kind ActionKind `json:"kind"`
	// Action holds the TradingAction variant on the write path; reads from
	// persistence decode it as a generic map.
	Action        any            `json:"action"`
	Validation    string         `json:"validation"` // "allowed" | denial reason
	Execution     map[string]any `json:"execution,omitempty"`
	Indeterminate bool           `json:"indeterminate,omitempty"`
}
