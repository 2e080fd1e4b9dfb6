package bridge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCreateAccountIdempotent(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusCreated, http.StatusConflict} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		client := New(server.URL, time.Second)
		if err := client.CreateAccount(context.Background(), "client_acme"); err != nil {
			t.Fatalf("status %d: unexpected error %v", status, err)
		}
		server.Close()
	}
}

func TestCreateAccountPropagatesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(server.URL, time.Second)
	err := client.CreateAccount(context.Background(), "client_acme")
	var be *Error
	if !errors.As(err, &be) || be.Kind != KindHTTP {
		t.Fatalf("expected http error, got %v", err)
	}
	if be.Status != http.StatusInternalServerError {
		t.Fatalf("status = %d", be.Status)
	}
}

func TestPlaceOrderTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := New(server.URL, 20*time.Millisecond)
	_, err := client.PlaceOrder(context.Background(), PlaceOrderRequest{
		AccountName: "client_acme", ConnectorName: "binance",
		TradingPair: "BTC-USDT", Side: "buy", OrderType: "market", Amount: 1,
	})
	if !IsTimeout(err) {
		t.Fatalf("expected timeout classification, got %v", err)
	}
}

func TestReadsDegradeToZeroValues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, time.Second)
	ctx := context.Background()

	if balances := client.GetBalances(ctx, "client_acme"); balances != nil {
		t.Fatalf("balances = %v, want nil", balances)
	}
	if orders := client.GetOrders(ctx, "client_acme", ""); orders != nil {
		t.Fatalf("orders = %v, want nil", orders)
	}
	if trades := client.GetHistory(ctx, "client_acme", "", 10); trades != nil {
		t.Fatalf("trades = %v, want nil", trades)
	}
	if price := client.GetPrice(ctx, "binance", "BTC-USDT"); price != 0 {
		t.Fatalf("price = %v, want 0", price)
	}
}

func TestGetPriceParsesPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("pair"); got != "BTC-USDT" {
			t.Errorf("pair query = %q", got)
		}
		w.Write([]byte(`{"price": 42.5}`))
	}))
	defer server.Close()

	client := New(server.URL, time.Second)
	if price := client.GetPrice(context.Background(), "binance", "BTC-USDT"); price != 42.5 {
		t.Fatalf("price = %v, want 42.5", price)
	}
}
