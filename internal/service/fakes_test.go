package service

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/pipelabs/tradegate/internal/model"
	"github.com/pipelabs/tradegate/internal/repository"
)

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	return body
}

type fakeClientRepo struct {
	clients   map[string]*model.Client
	slugTaken bool
}

func (f *fakeClientRepo) GetByID(_ context.Context, id string) (*model.Client, error) {
	client, ok := f.clients[id]
	if !ok {
		return nil, repository.ErrTenantNotFound
	}
	return client, nil
}

func (f *fakeClientRepo) GetByAPIKey(_ context.Context, apiKey string) (*model.Client, error) {
	for _, client := range f.clients {
		if client.APIKey == apiKey {
			return client, nil
		}
	}
	return nil, repository.ErrTenantNotFound
}

func (f *fakeClientRepo) SlugTaken(_ context.Context, _, _ string) (bool, error) {
	return f.slugTaken, nil
}

type fakeCredRepo struct {
	creds    []*model.ExchangeCredential
	inserted []*model.ExchangeCredential
}

func (f *fakeCredRepo) Insert(_ context.Context, c *model.ExchangeCredential) error {
	f.inserted = append(f.inserted, c)
	f.creds = append(f.creds, c)
	return nil
}

func (f *fakeCredRepo) GetByID(_ context.Context, clientID, id string) (*model.ExchangeCredential, error) {
	for _, c := range f.creds {
		if c.ClientID == clientID && c.ID == id {
			return c, nil
		}
	}
	return nil, repository.ErrCredentialNotFound
}

func (f *fakeCredRepo) ListByClient(_ context.Context, clientID string) ([]*model.ExchangeCredential, error) {
	var out []*model.ExchangeCredential
	for _, c := range f.creds {
		if c.ClientID == clientID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCredRepo) ListActiveByClient(ctx context.Context, clientID string) ([]*model.ExchangeCredential, error) {
	all, _ := f.ListByClient(ctx, clientID)
	var out []*model.ExchangeCredential
	for _, c := range all {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCredRepo) Deactivate(_ context.Context, clientID, id string) error {
	for _, c := range f.creds {
		if c.ClientID == clientID && c.ID == id {
			c.IsActive = false
			return nil
		}
	}
	return repository.ErrCredentialNotFound
}

func (f *fakeCredRepo) Delete(_ context.Context, clientID, id string) error {
	for i, c := range f.creds {
		if c.ClientID == clientID && c.ID == id {
			f.creds = append(f.creds[:i], f.creds[i+1:]...)
			return nil
		}
	}
	return repository.ErrCredentialNotFound
}

type fakePairRepo struct {
	pairs []*model.TradingPair
}

func (f *fakePairRepo) ListByClient(_ context.Context, clientID string) ([]*model.TradingPair, error) {
	var out []*model.TradingPair
	for _, p := range f.pairs {
		if p.ClientID == clientID {
			out = append(out, p)
		}
	}
	return out, nil
}

func testScope() *model.ClientScope {
	return &model.ClientScope{
		ClientID:         "client-1",
		ClientName:       "Acme Trading",
		AllowedAccounts:  []string{"client_acme_trading"},
		AllowedPairs:     []string{"BTC-USDT", "SHARP-USDT"},
		AllowedExchanges: []string{"binance", "gate_io"},
		MaxSpread:        0.5,
		MaxDailyVolume:   50000,
		ConfirmThreshold: 100,
	}
}
