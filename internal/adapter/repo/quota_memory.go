package repo

import (
	"context"
	"sync"

	"server/internal/domain"
)

// CounterRegistry is the ephemeral domain.QuotaRepository used alongside the
// in-memory job registry. Counters reset with the process, which matches the
// durability of the jobs they meter.
type CounterRegistry struct {
	mu       sync.RWMutex
	counters map[string]*domain.QuotaCounter
}

func NewCounterRegistry() *CounterRegistry {
	return &CounterRegistry{counters: make(map[string]*domain.QuotaCounter)}
}

func counterKey(owner, capability string) string {
	return owner + "/" + capability
}

func (r *CounterRegistry) GetCounter(ctx context.Context, owner, capability string) (*domain.QuotaCounter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counter, ok := r.counters[counterKey(owner, capability)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *counter
	return &copied, nil
}

func (r *CounterRegistry) SaveCounter(ctx context.Context, counter *domain.QuotaCounter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *counter
	r.counters[counterKey(counter.Owner, counter.Capability)] = &copied
	return nil
}

// StaticEntitlements resolves every owner to the same plan. It backs the
// in-memory mode, where there is no subscription table to consult.
type StaticEntitlements struct {
	Plan domain.PlanTier
}

func (s StaticEntitlements) CurrentPlan(ctx context.Context, owner string) (domain.PlanTier, error) {
	return s.Plan, nil
}

var (
	_ domain.QuotaRepository       = (*CounterRegistry)(nil)
	_ domain.EntitlementRepository = StaticEntitlements{}
)
