package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pipelabs/tradegate/internal/model"
)

const clientCacheTTL = 30 * time.Second

type cachedClient struct {
	client    *model.Client
	fetchedAt time.Time
}

// ClientManager resolves gateway API keys to clients and hands out one rate
// limiter per client. Lookups are cached for a short TTL so auth does not
// hit the database on every request; a deactivated client is locked out
// within the TTL.
type ClientManager struct {
	repo  ClientRepo
	qps   rate.Limit
	burst int

	mu       sync.RWMutex
	byKey    map[string]cachedClient
	limiters map[string]*rate.Limiter
}

func NewClientManager(repo ClientRepo, qps float64, burst int) *ClientManager {
	if qps <= 0 {
		qps = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return &ClientManager{
		repo:     repo,
		qps:      rate.Limit(qps),
		burst:    burst,
		byKey:    make(map[string]cachedClient),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Authenticate resolves an API key to an active client. Returns
// repository.ErrTenantNotFound (wrapped by the repo) for unknown keys.
func (m *ClientManager) Authenticate(ctx context.Context, apiKey string) (*model.Client, error) {
	m.mu.RLock()
	cached, ok := m.byKey[apiKey]
	m.mu.RUnlock()
	if ok && time.Since(cached.fetchedAt) < clientCacheTTL {
		return cached.client, nil
	}

	client, err := m.repo.GetByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.byKey[apiKey] = cachedClient{client: client, fetchedAt: time.Now()}
	m.mu.Unlock()
	return client, nil
}

// Limiter returns the client's rate limiter, creating it on first use.
func (m *ClientManager) Limiter(clientID string) *rate.Limiter {
	m.mu.RLock()
	limiter, ok := m.limiters[clientID]
	m.mu.RUnlock()
	if ok {
		return limiter
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if limiter, ok := m.limiters[clientID]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(m.qps, m.burst)
	m.limiters[clientID] = limiter
	return limiter
}

// Invalidate drops a cached key, forcing the next request through the
// repository.
func (m *ClientManager) Invalidate(apiKey string) {
	m.mu.Lock()
	delete(m.byKey, apiKey)
	m.mu.Unlock()
}
