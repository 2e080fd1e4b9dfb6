package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pipelabs/tradegate/internal/bridge"
	"github.com/pipelabs/tradegate/internal/model"
)

func TestExecutePlaceOrderTimeoutIsIndeterminate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(server.Close)

	exec := NewExecutor(bridge.New(server.URL, 20*time.Millisecond), NewValidator(NewMemoryUsageRepo()), NewMemoryUsageRepo(), 1600)
	price := 100.0
	record := exec.Execute(context.Background(), testScope(), model.PlaceOrder{
		Connector: "binance", Pair: "BTC-USDT", Side: "buy",
		Amount: 1, OrderType: "limit", Price: &price,
	})

	if record.Validation != "allowed" {
		t.Fatalf("validation = %s", record.Validation)
	}
	if !record.Indeterminate {
		t.Fatal("timed-out placement must be indeterminate")
	}
	if record.Execution["state"] != "indeterminate" {
		t.Fatalf("execution = %v", record.Execution)
	}
}

func TestExecutePlaceOrderTracksUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"order_id":"o-1","status":"filled","price":100,"amount":2}`))
	}))
	t.Cleanup(server.Close)

	usage := NewMemoryUsageRepo()
	exec := NewExecutor(bridge.New(server.URL, time.Second), NewValidator(usage), usage, 1600)
	scope := testScope()

	record := exec.Execute(context.Background(), scope, model.PlaceOrder{
		Connector: "binance", Pair: "BTC-USDT", Side: "buy", Amount: 2, OrderType: "market",
	})
	if record.Validation != "allowed" {
		t.Fatalf("validation = %s", record.Validation)
	}

	orders, volume, err := usage.GetDailyUsage(context.Background(), scope.ClientID)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if orders != 1 {
		t.Fatalf("orders = %d, want 1", orders)
	}
	if volume != 200 {
		t.Fatalf("volume = %v, want 200", volume)
	}
}

func TestExecuteDeniedActionSkipsBridge(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	t.Cleanup(server.Close)

	exec := NewExecutor(bridge.New(server.URL, time.Second), NewValidator(NewMemoryUsageRepo()), NewMemoryUsageRepo(), 1600)
	record := exec.Execute(context.Background(), testScope(), model.CheckStatus{
		Pair: "BTC-USDT", Account: "client_someone_else",
	})

	if record.Validation == "allowed" {
		t.Fatal("expected denial")
	}
	if calls != 0 {
		t.Fatalf("bridge called %d times for a denied action", calls)
	}
}
