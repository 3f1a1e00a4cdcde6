// Package quota enforces per-plan usage ceilings for generation capabilities.
package quota

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"server/internal/domain"
)

// Guard performs admission control against per-plan usage counters. Counters
// are read-modify-written without a transaction tying them to job completion;
// the counter is advisory, not ledger-grade.
type Guard struct {
	entitlements domain.EntitlementRepository
	counters     domain.QuotaRepository
	plans        map[domain.PlanTier]domain.PlanLimits
	now          func() time.Time
}

// Option customizes a Guard.
type Option func(*Guard)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithPlanLimits overrides the plan table.
func WithPlanLimits(plans map[domain.PlanTier]domain.PlanLimits) Option {
	return func(g *Guard) { g.plans = plans }
}

// NewGuard constructs a Guard over the given repositories.
func NewGuard(entitlements domain.EntitlementRepository, counters domain.QuotaRepository, opts ...Option) *Guard {
	g := &Guard{
		entitlements: entitlements,
		counters:     counters,
		plans:        domain.DefaultPlanLimits,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CheckAllowed decides whether the owner may start another unit of work for
// the capability. Untracked tiers are always allowed and never touch the
// counter. Tracked tiers lazily reset the counter on the first read after a
// period boundary, then compare the count against the plan capacity.
func (g *Guard) CheckAllowed(ctx context.Context, owner, capability string) (domain.QuotaSnapshot, error) {
	plan, limits, err := g.resolvePlan(ctx, owner)
	if err != nil {
		return domain.QuotaSnapshot{}, err
	}
	if !limits.Tracked {
		return domain.QuotaSnapshot{Allowed: true, Used: 0, Limit: math.MaxInt, Plan: plan, Unlimited: true}, nil
	}

	counter, err := g.loadCounter(ctx, owner, capability, limits)
	if err != nil {
		return domain.QuotaSnapshot{}, err
	}
	return domain.QuotaSnapshot{
		Allowed: counter.PeriodCount < limits.Capacity,
		Used:    counter.PeriodCount,
		Limit:   limits.Capacity,
		Plan:    plan,
	}, nil
}

// RecordUsage increments the owner's counter for the capability, applying the
// same lazy reset as CheckAllowed first. Untracked tiers are a no-op.
func (g *Guard) RecordUsage(ctx context.Context, owner, capability string) error {
	_, limits, err := g.resolvePlan(ctx, owner)
	if err != nil {
		return err
	}
	if !limits.Tracked {
		return nil
	}

	counter, err := g.loadCounter(ctx, owner, capability, limits)
	if err != nil {
		return err
	}
	counter.PeriodCount++
	if err := g.counters.SaveCounter(ctx, counter); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

func (g *Guard) resolvePlan(ctx context.Context, owner string) (domain.PlanTier, domain.PlanLimits, error) {
	plan, err := g.entitlements.CurrentPlan(ctx, owner)
	if err != nil {
		return "", domain.PlanLimits{}, fmt.Errorf("resolve plan: %w", err)
	}
	limits, ok := g.plans[plan]
	if !ok {
		plan = domain.PlanFree
		limits = g.plans[domain.PlanFree]
	}
	return plan, limits, nil
}

// loadCounter fetches or creates the counter and persists a reset when the
// period boundary has been crossed since the last one.
func (g *Guard) loadCounter(ctx context.Context, owner, capability string, limits domain.PlanLimits) (*domain.QuotaCounter, error) {
	now := g.now()
	counter, err := g.counters.GetCounter(ctx, owner, capability)
	if errors.Is(err, domain.ErrNotFound) {
		counter = &domain.QuotaCounter{
			Owner:       owner,
			Capability:  capability,
			PeriodKind:  limits.Period,
			LastResetAt: now,
		}
		if err := g.counters.SaveCounter(ctx, counter); err != nil {
			return nil, fmt.Errorf("create counter: %w", err)
		}
		return counter, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load counter: %w", err)
	}

	if counter.NeedsReset(now) {
		counter.PeriodCount = 0
		counter.LastResetAt = now
		if err := g.counters.SaveCounter(ctx, counter); err != nil {
			return nil, fmt.Errorf("reset counter: %w", err)
		}
	}
	return counter, nil
}
