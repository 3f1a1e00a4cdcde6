package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"server/internal/domain"
)

type memEntitlements struct {
	plans map[string]domain.PlanTier
}

func (m *memEntitlements) CurrentPlan(ctx context.Context, owner string) (domain.PlanTier, error) {
	if plan, ok := m.plans[owner]; ok {
		return plan, nil
	}
	return domain.PlanFree, nil
}

type memCounters struct {
	counters map[string]*domain.QuotaCounter
	saves    int
}

func counterKey(owner, capability string) string {
	return owner + "/" + capability
}

func (m *memCounters) GetCounter(ctx context.Context, owner, capability string) (*domain.QuotaCounter, error) {
	counter, ok := m.counters[counterKey(owner, capability)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *counter
	return &clone, nil
}

func (m *memCounters) SaveCounter(ctx context.Context, counter *domain.QuotaCounter) error {
	if m.counters == nil {
		m.counters = make(map[string]*domain.QuotaCounter)
	}
	clone := *counter
	m.counters[counterKey(counter.Owner, counter.Capability)] = &clone
	m.saves++
	return nil
}

func newGuard(t *testing.T, plans map[string]domain.PlanTier, counters *memCounters, now time.Time) *Guard {
	t.Helper()
	return NewGuard(
		&memEntitlements{plans: plans},
		counters,
		WithClock(func() time.Time { return now }),
	)
}

func TestCheckAllowedUnlimitedPlanSkipsCounter(t *testing.T) {
	counters := &memCounters{}
	guard := newGuard(t, map[string]domain.PlanTier{"u1": domain.PlanPro}, counters, time.Now())

	snap, err := guard.CheckAllowed(context.Background(), "u1", domain.CapabilityAIGeneration)
	require.NoError(t, err)
	require.True(t, snap.Allowed)
	require.True(t, snap.Unlimited)
	require.Equal(t, domain.PlanPro, snap.Plan)
	require.Zero(t, counters.saves, "untracked plans must not touch the counter")
}

func TestCheckAllowedRejectsAtCapacity(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	counters := &memCounters{counters: map[string]*domain.QuotaCounter{
		counterKey("u1", domain.CapabilityAIGeneration): {
			Owner:       "u1",
			Capability:  domain.CapabilityAIGeneration,
			PeriodCount: 1,
			PeriodKind:  domain.PeriodDaily,
			LastResetAt: now.Add(-time.Hour),
		},
	}}
	guard := newGuard(t, nil, counters, now) // free plan: capacity 1/day

	snap, err := guard.CheckAllowed(context.Background(), "u1", domain.CapabilityAIGeneration)
	require.NoError(t, err)
	require.False(t, snap.Allowed)
	require.Equal(t, 1, snap.Used)
	require.Equal(t, 1, snap.Limit)
	require.Equal(t, domain.PlanFree, snap.Plan)
}

func TestCheckAllowedCreatesCounterOnFirstRead(t *testing.T) {
	counters := &memCounters{}
	guard := newGuard(t, map[string]domain.PlanTier{"u1": domain.PlanStarter}, counters, time.Now())

	snap, err := guard.CheckAllowed(context.Background(), "u1", domain.CapabilityAIGeneration)
	require.NoError(t, err)
	require.True(t, snap.Allowed)
	require.Equal(t, 0, snap.Used)
	require.Equal(t, 20, snap.Limit)
	require.Equal(t, 1, counters.saves)
}

func TestDailyResetHappensOncePerBoundary(t *testing.T) {
	day1 := time.Date(2026, time.March, 10, 23, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, time.March, 11, 1, 0, 0, 0, time.UTC)

	counters := &memCounters{counters: map[string]*domain.QuotaCounter{
		counterKey("u1", domain.CapabilityAIGeneration): {
			Owner:       "u1",
			Capability:  domain.CapabilityAIGeneration,
			PeriodCount: 1,
			PeriodKind:  domain.PeriodDaily,
			LastResetAt: day1,
		},
	}}

	// Crossing the boundary resets the count to zero.
	guard := newGuard(t, nil, counters, day2)
	snap, err := guard.CheckAllowed(context.Background(), "u1", domain.CapabilityAIGeneration)
	require.NoError(t, err)
	require.True(t, snap.Allowed)
	require.Equal(t, 0, snap.Used)

	savesAfterReset := counters.saves

	// Repeated checks within the same period do not reset again.
	for i := 0; i < 3; i++ {
		snap, err = guard.CheckAllowed(context.Background(), "u1", domain.CapabilityAIGeneration)
		require.NoError(t, err)
		require.True(t, snap.Allowed)
		require.Equal(t, 0, snap.Used)
	}
	require.Equal(t, savesAfterReset, counters.saves, "reset must happen exactly once per boundary crossing")
}

func TestMonthlyBoundaryUsesMonthAndYear(t *testing.T) {
	counter := domain.QuotaCounter{
		PeriodKind:  domain.PeriodMonthly,
		LastResetAt: time.Date(2026, time.February, 28, 10, 0, 0, 0, time.UTC),
	}
	require.False(t, counter.NeedsReset(time.Date(2026, time.February, 28, 23, 0, 0, 0, time.UTC)))
	require.True(t, counter.NeedsReset(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)))
	require.True(t, counter.NeedsReset(time.Date(2027, time.February, 1, 0, 0, 0, 0, time.UTC)))
}

func TestRecordUsageIncrementsWithinPeriod(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	counters := &memCounters{}
	guard := newGuard(t, map[string]domain.PlanTier{"u1": domain.PlanStarter}, counters, now)

	require.NoError(t, guard.RecordUsage(context.Background(), "u1", domain.CapabilityAIGeneration))
	require.NoError(t, guard.RecordUsage(context.Background(), "u1", domain.CapabilityAIGeneration))

	snap, err := guard.CheckAllowed(context.Background(), "u1", domain.CapabilityAIGeneration)
	require.NoError(t, err)
	require.Equal(t, 2, snap.Used)
	require.True(t, snap.Allowed)
}

func TestRecordUsageNoopForUnlimitedPlan(t *testing.T) {
	counters := &memCounters{}
	guard := newGuard(t, map[string]domain.PlanTier{"u1": domain.PlanLifetime}, counters, time.Now())

	require.NoError(t, guard.RecordUsage(context.Background(), "u1", domain.CapabilityAIGeneration))
	require.Zero(t, counters.saves)
}

func TestUnknownPlanFallsBackToFree(t *testing.T) {
	counters := &memCounters{}
	guard := newGuard(t, map[string]domain.PlanTier{"u1": domain.PlanTier("legacy")}, counters, time.Now())

	snap, err := guard.CheckAllowed(context.Background(), "u1", domain.CapabilityAIGeneration)
	require.NoError(t, err)
	require.Equal(t, domain.PlanFree, snap.Plan)
	require.Equal(t, 1, snap.Limit)
}
