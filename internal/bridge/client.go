package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pipelabs/tradegate/internal/pkg/logger"
	"github.com/pipelabs/tradegate/internal/pkg/metrics"
)

// Client wraps every outbound call to the external execution service.
// Write calls (account create, connector add, order place/cancel) propagate
// classified errors; read calls degrade to zero values because a dashboard
// showing "no data" beats a crashed request.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: timeout,
		},
	}
}

type AddConnectorRequest struct {
	AccountName   string `json:"account_name"`
	ConnectorName string `json:"connector_name"`
	APIKey        string `json:"api_key"`
	APISecret     string `json:"api_secret"`
	Memo          string `json:"memo,omitempty"`
}

type PlaceOrderRequest struct {
	AccountName   string   `json:"account_name"`
	ConnectorName string   `json:"connector_name"`
	TradingPair   string   `json:"trading_pair"`
	Side          string   `json:"side"`
	OrderType     string   `json:"order_type"`
	Amount        float64  `json:"amount"`
	Price         *float64 `json:"price,omitempty"`
}

type OrderResult struct {
	OrderID string  `json:"order_id"`
	Status  string  `json:"status"`
	Price   float64 `json:"price"`
	Amount  float64 `json:"amount"`
}

type Balance struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

type OpenOrder struct {
	OrderID string  `json:"order_id"`
	Pair    string  `json:"pair"`
	Side    string  `json:"side"`
	Price   float64 `json:"price"`
	Amount  float64 `json:"amount"`
}

type Trade struct {
	TradeID string  `json:"trade_id"`
	Pair    string  `json:"pair"`
	Side    string  `json:"side"`
	Price   float64 `json:"price"`
	Amount  float64 `json:"amount"`
	Time    int64   `json:"time"`
}

// CreateAccount is idempotent: 200/201 create, 409 means the account already
// exists and is treated as success, so it may be repeated any number of
// times.
func (c *Client) CreateAccount(ctx context.Context, accountName string) error {
	body, status, err := c.post(ctx, "accounts_create", "/accounts/create", map[string]string{
		"account_name": accountName,
	})
	if err != nil {
		return err
	}
	if status == http.StatusOK || status == http.StatusCreated || status == http.StatusConflict {
		return nil
	}
	return httpError("accounts_create", status, body)
}

func (c *Client) AddConnector(ctx context.Context, req AddConnectorRequest) error {
	body, status, err := c.post(ctx, "connectors_add", "/connectors/add", req)
	if err != nil {
		return err
	}
	if status == http.StatusOK || status == http.StatusCreated {
		return nil
	}
	return httpError("connectors_add", status, body)
}

// PlaceOrder propagates every failure. On timeout the caller must surface
// the order as indeterminate: the service may or may not have accepted it,
// and blind retry risks a duplicate submission.
func (c *Client) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*OrderResult, error) {
	body, status, err := c.post(ctx, "orders_place", "/orders/place", req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, httpError("orders_place", status, body)
	}
	var result OrderResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &Error{Kind: KindUnknown, Op: "orders_place", Err: err}
	}
	return &result, nil
}

func (c *Client) CancelOrder(ctx context.Context, accountName, orderID string) error {
	body, status, err := c.post(ctx, "orders_cancel", "/orders/cancel", map[string]string{
		"account_name": accountName,
		"order_id":     orderID,
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return httpError("orders_cancel", status, body)
	}
	return nil
}

// GetBalances degrades to an empty slice on any failure.
func (c *Client) GetBalances(ctx context.Context, accountName string) []Balance {
	var payload struct {
		Balances []Balance `json:"balances"`
	}
	if err := c.getJSON(ctx, "portfolio", "/portfolio", url.Values{"account": {accountName}}, &payload); err != nil {
		logger.Warn("portfolio read degraded to empty", "account", accountName, "error", err.Error())
		return nil
	}
	return payload.Balances
}

// GetOrders degrades to an empty slice on any failure.
func (c *Client) GetOrders(ctx context.Context, accountName, pair string) []OpenOrder {
	params := url.Values{"account": {accountName}}
	if pair != "" {
		params.Set("pair", pair)
	}
	var payload struct {
		Orders []OpenOrder `json:"orders"`
	}
	if err := c.getJSON(ctx, "orders", "/orders", params, &payload); err != nil {
		logger.Warn("orders read degraded to empty", "account", accountName, "error", err.Error())
		return nil
	}
	return payload.Orders
}

// GetHistory degrades to an empty slice on any failure.
func (c *Client) GetHistory(ctx context.Context, accountName, pair string, limit int) []Trade {
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{"account": {accountName}, "limit": {strconv.Itoa(limit)}}
	if pair != "" {
		params.Set("pair", pair)
	}
	var payload struct {
		Trades []Trade `json:"trades"`
	}
	if err := c.getJSON(ctx, "history", "/history", params, &payload); err != nil {
		logger.Warn("history read degraded to empty", "account", accountName, "error", err.Error())
		return nil
	}
	return payload.Trades
}

// GetPrice degrades to zero on any failure; zero means unavailable.
func (c *Client) GetPrice(ctx context.Context, connector, pair string) float64 {
	params := url.Values{"connector": {connector}, "pair": {pair}}
	var payload struct {
		Price float64 `json:"price"`
	}
	if err := c.getJSON(ctx, "market_price", "/market/price", params, &payload); err != nil {
		logger.Warn("price read degraded to zero", "connector", connector, "pair", pair, "error", err.Error())
		return 0
	}
	return payload.Price
}

func (c *Client) post(ctx context.Context, op, path string, payload any) ([]byte, int, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, &Error{Kind: KindUnknown, Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, 0, &Error{Kind: KindUnknown, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(op, req)
}

func (c *Client) getJSON(ctx context.Context, op, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &Error{Kind: KindUnknown, Op: op, Err: err}
	}
	body, status, err := c.do(op, req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return httpError(op, status, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Kind: KindUnknown, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) do(op string, req *http.Request) ([]byte, int, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.BridgeLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		classified := classify(op, err)
		metrics.BridgeRequests.WithLabelValues(op, string(classified.Kind)).Inc()
		return nil, 0, classified
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		classified := classify(op, err)
		metrics.BridgeRequests.WithLabelValues(op, string(classified.Kind)).Inc()
		return nil, 0, classified
	}
	metrics.BridgeRequests.WithLabelValues(op, "ok").Inc()
	return body, resp.StatusCode, nil
}
