package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"server/internal/domain"
)

// JobRegistry is the ephemeral domain.JobRepository: a process-local map with
// no durability across restarts. Entries live until an explicit delete or
// until the sweeper evicts them past the retention window. Jobs are copied on
// the way in and out so callers never share mutable state with the registry.
type JobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

// NewJobRegistry constructs an empty registry.
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{jobs: make(map[string]*domain.Job)}
}

func (r *JobRegistry) Create(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *JobRegistry) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

// ListByOwner returns the owner's jobs newest first, windowed the same way
// as the SQL implementation so the two are interchangeable.
func (r *JobRegistry) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*domain.Job, error) {
	r.mu.RLock()
	var owned []*domain.Job
	for _, job := range r.jobs {
		if job.Owner == owner {
			owned = append(owned, job.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	if offset >= len(owned) {
		return nil, nil
	}
	owned = owned[offset:]
	if limit > 0 && limit < len(owned) {
		owned = owned[:limit]
	}
	return owned, nil
}

func (r *JobRegistry) Update(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return domain.ErrNotFound
	}
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *JobRegistry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
	return nil
}

// SweepExpired removes entries created before the cutoff and reports how many
// were evicted.
func (r *JobRegistry) SweepExpired(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, job := range r.jobs {
		if job.CreatedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

// Len reports the current number of tracked jobs.
func (r *JobRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

var _ domain.JobRepository = (*JobRegistry)(nil)
