package domain

import "context"

// JobRepository defines persistence for generation jobs. Two implementations
// exist: a Postgres-backed table and an ephemeral time-boxed registry.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, id string) (*Job, error)
	ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*Job, error)
	Update(ctx context.Context, job *Job) error
	Delete(ctx context.Context, id string) error
}

// QuotaRepository persists per-owner usage counters.
type QuotaRepository interface {
	GetCounter(ctx context.Context, owner, capability string) (*QuotaCounter, error)
	SaveCounter(ctx context.Context, counter *QuotaCounter) error
}

// EntitlementRepository resolves the owner's current plan tier.
type EntitlementRepository interface {
	CurrentPlan(ctx context.Context, owner string) (PlanTier, error)
}
