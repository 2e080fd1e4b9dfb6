package service

import (
	"context"
	"sync"
	"time"
)

// UsageRepo tracks per-client order count and traded volume for the current
// UTC day. Backed by redis in production, by MemoryUsageRepo when redis is
// not configured.
type UsageRepo interface {
	GetDailyUsage(ctx context.Context, clientID string) (orders int, volume float64, err error)
	AddDailyUsage(ctx context.Context, clientID string, orders int, amount float64) error
}

type memoryUsage struct {
	Orders int
	Volume float64
}

// MemoryUsageRepo is the in-process fallback counter. Counts reset on
// restart, which is acceptable only for single-node development setups.
type MemoryUsageRepo struct {
	mu    sync.Mutex
	usage map[string]*memoryUsage
}

func NewMemoryUsageRepo() *MemoryUsageRepo {
	return &MemoryUsageRepo{usage: make(map[string]*memoryUsage)}
}

func (m *MemoryUsageRepo) GetDailyUsage(_ context.Context, clientID string) (int, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.usage[m.key(clientID)]
	if !ok {
		return 0, 0, nil
	}
	return entry.Orders, entry.Volume, nil
}

func (m *MemoryUsageRepo) AddDailyUsage(_ context.Context, clientID string, orders int, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := m.key(clientID)
	entry, ok := m.usage[key]
	if !ok {
		entry = &memoryUsage{}
		m.usage[key] = entry
	}
	entry.Orders += orders
	entry.Volume += amount
	return nil
}

func (m *MemoryUsageRepo) key(clientID string) string {
	return clientID + ":" + time.Now().UTC().Format("2006-01-02")
}
