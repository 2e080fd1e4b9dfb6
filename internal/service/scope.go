package service

import (
	"context"
	"errors"

	"github.com/pipelabs/tradegate/internal/config"
	"github.com/pipelabs/tradegate/internal/model"
	"github.com/pipelabs/tradegate/internal/pkg/apperrors"
	"github.com/pipelabs/tradegate/internal/repository"
)

type ClientRepo interface {
	GetByID(ctx context.Context, id string) (*model.Client, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*model.Client, error)
	SlugTaken(ctx context.Context, slug, excludeClientID string) (bool, error)
}

type CredentialRepo interface {
	Insert(ctx context.Context, c *model.ExchangeCredential) error
	GetByID(ctx context.Context, clientID, id string) (*model.ExchangeCredential, error)
	ListByClient(ctx context.Context, clientID string) ([]*model.ExchangeCredential, error)
	ListActiveByClient(ctx context.Context, clientID string) ([]*model.ExchangeCredential, error)
	Deactivate(ctx context.Context, clientID, id string) error
	Delete(ctx context.Context, clientID, id string) error
}

type PairRepo interface {
	ListByClient(ctx context.Context, clientID string) ([]*model.TradingPair, error)
}

// ScopeResolver builds a ClientScope from the rows a client owns. It is
// invoked per request: scopes are never cached, so a revoked credential or
// removed pair takes effect on the very next request.
type ScopeResolver struct {
	clients  ClientRepo
	creds    CredentialRepo
	pairs    PairRepo
	defaults config.RiskConfig
}

func NewScopeResolver(clients ClientRepo, creds CredentialRepo, pairs PairRepo, defaults config.RiskConfig) *ScopeResolver {
	return &ScopeResolver{clients: clients, creds: creds, pairs: pairs, defaults: defaults}
}

// Resolve loads the scope for one client. Every query is keyed by the
// client id; nothing here may read another tenant's rows.
func (r *ScopeResolver) Resolve(ctx context.Context, clientID string) (*model.ClientScope, error) {
	client, err := r.clients.GetByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, repository.ErrTenantNotFound) {
			return nil, apperrors.New(apperrors.ErrTenantNotFound, "client "+clientID+" not found", err)
		}
		return nil, err
	}
	return r.resolveForClient(ctx, client)
}

func (r *ScopeResolver) resolveForClient(ctx context.Context, client *model.Client) (*model.ClientScope, error) {
	creds, err := r.creds.ListActiveByClient(ctx, client.ID)
	if err != nil {
		return nil, err
	}
	pairs, err := r.pairs.ListByClient(ctx, client.ID)
	if err != nil {
		return nil, err
	}

	exchanges := make([]string, 0, len(creds))
	seenEx := make(map[string]struct{})
	for _, cred := range creds {
		ex := model.NormalizeExchangeID(cred.Exchange)
		if _, ok := seenEx[ex]; ok {
			continue
		}
		seenEx[ex] = struct{}{}
		exchanges = append(exchanges, ex)
	}

	allowedPairs := make([]string, 0, len(pairs))
	seenPair := make(map[string]struct{})
	for _, p := range pairs {
		if p.Status != "" && p.Status != "active" {
			continue
		}
		if _, ok := seenPair[p.Pair]; ok {
			continue
		}
		seenPair[p.Pair] = struct{}{}
		allowedPairs = append(allowedPairs, p.Pair)
	}

	scope := &model.ClientScope{
		ClientID:         client.ID,
		ClientName:       client.Name,
		AllowedAccounts:  []string{model.AccountSlug(client.Name)},
		AllowedPairs:     allowedPairs,
		AllowedExchanges: exchanges,
		MaxSpread:        client.Settings.MaxSpread,
		MaxDailyVolume:   client.Settings.MaxDailyVolume,
		ConfirmThreshold: client.Settings.ConfirmThreshold,
	}
	if scope.MaxSpread <= 0 {
		scope.MaxSpread = r.defaults.MaxSpread
	}
	if scope.MaxDailyVolume <= 0 {
		scope.MaxDailyVolume = r.defaults.MaxDailyVolume
	}
	if scope.ConfirmThreshold <= 0 {
		scope.ConfirmThreshold = r.defaults.ConfirmThreshold
	}
	return scope, nil
}
