package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
	"server/internal/infra"
)

// QuotaRepositoryPG implements domain.QuotaRepository on PostgreSQL.
type QuotaRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewQuotaRepository creates a counter repository backed by PostgreSQL.
func NewQuotaRepository(pool *pgxpool.Pool) *QuotaRepositoryPG {
	return &QuotaRepositoryPG{pool: pool}
}

// GetCounter fetches the usage counter for an owner/capability pair.
func (r *QuotaRepositoryPG) GetCounter(ctx context.Context, owner, capability string) (*domain.QuotaCounter, error) {
	query := `
SELECT owner_id, capability, period_count, period_kind, last_reset_at
FROM usage_counters
WHERE owner_id = $1 AND capability = $2;
`
	row := r.pool.QueryRow(ctx, query, owner, capability)
	var counter domain.QuotaCounter
	if err := row.Scan(
		&counter.Owner,
		&counter.Capability,
		&counter.PeriodCount,
		&counter.PeriodKind,
		&counter.LastResetAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &counter, nil
}

// SaveCounter upserts the counter row.
func (r *QuotaRepositoryPG) SaveCounter(ctx context.Context, counter *domain.QuotaCounter) error {
	query := `
INSERT INTO usage_counters (owner_id, capability, period_count, period_kind, last_reset_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (owner_id, capability)
DO UPDATE SET period_count = EXCLUDED.period_count,
              period_kind = EXCLUDED.period_kind,
              last_reset_at = EXCLUDED.last_reset_at,
              updated_at = NOW();
`
	_, err := r.pool.Exec(ctx, query,
		counter.Owner,
		counter.Capability,
		counter.PeriodCount,
		counter.PeriodKind,
		counter.LastResetAt,
	)
	return err
}

// EntitlementRepositoryPG resolves plans from the subscriptions table.
type EntitlementRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewEntitlementRepository creates a plan resolver backed by PostgreSQL.
func NewEntitlementRepository(pool *pgxpool.Pool) *EntitlementRepositoryPG {
	return &EntitlementRepositoryPG{pool: pool}
}

// CurrentPlan resolves the owner's effective tier from the most recent
// subscription. A lifetime grant always wins; otherwise the subscription must
// be active and unexpired, and owners without one are on the free tier.
func (r *EntitlementRepositoryPG) CurrentPlan(ctx context.Context, owner string) (domain.PlanTier, error) {
	query := `
SELECT plan, status, is_lifetime, expires_at
FROM subscriptions
WHERE owner_id = $1
ORDER BY created_at DESC
LIMIT 1;
`
	row := r.pool.QueryRow(ctx, query, owner)
	var plan, status string
	var isLifetime bool
	var expiresAt *time.Time
	if err := row.Scan(&plan, &status, &isLifetime, &expiresAt); err != nil {
		if infra.IsNoRows(err) {
			return domain.PlanFree, nil
		}
		return "", err
	}
	if isLifetime {
		return domain.PlanLifetime, nil
	}
	if status != "active" {
		return domain.PlanFree, nil
	}
	if expiresAt != nil && expiresAt.Before(time.Now()) {
		return domain.PlanFree, nil
	}
	return domain.PlanTier(plan), nil
}
