// Package service holds the application layer: admission, ownership checks
// and the handoff between the synchronous HTTP surface and the background
// orchestrator.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/storage"
)

// QuotaGuard is the admission slice of the quota package.
type QuotaGuard interface {
	CheckAllowed(ctx context.Context, owner, capability string) (domain.QuotaSnapshot, error)
}

// Processor runs a job to a terminal state in the background.
type Processor interface {
	Process(ctx context.Context, jobID string) error
}

// TaskRunner detaches a unit of work from the request lifecycle.
type TaskRunner interface {
	Go(name string, fn func(ctx context.Context) error)
}

// GenerationService implements the job lifecycle operations exposed over
// HTTP: admission and submission, status queries, listing, deletion and
// usage snapshots.
type GenerationService struct {
	jobs      domain.JobRepository
	guard     QuotaGuard
	processor Processor
	runner    TaskRunner
	store     storage.Store
	logger    infra.Logger
	now       func() time.Time
}

// Options wires a GenerationService.
type Options struct {
	Jobs      domain.JobRepository
	Guard     QuotaGuard
	Processor Processor
	Runner    TaskRunner
	Store     storage.Store
	Logger    infra.Logger
	Now       func() time.Time
}

func NewGenerationService(opts Options) *GenerationService {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &GenerationService{
		jobs:      opts.Jobs,
		guard:     opts.Guard,
		processor: opts.Processor,
		runner:    opts.Runner,
		store:     opts.Store,
		logger:    opts.Logger,
		now:       now,
	}
}

// Submit validates and admits a generation request. On success the job is
// persisted as pending, handed to the background runner, and returned
// immediately; the caller polls for the outcome. Rejections (bad params,
// exhausted quota) happen before any record exists.
func (s *GenerationService) Submit(ctx context.Context, owner string, params domain.GenerationParams) (*domain.Job, error) {
	params.Normalize()
	if err := params.Validate(); err != nil {
		return nil, err
	}

	snapshot, err := s.guard.CheckAllowed(ctx, owner, domain.CapabilityAIGeneration)
	if err != nil {
		return nil, fmt.Errorf("submit: quota check: %w", err)
	}
	if !snapshot.Allowed {
		return nil, &domain.QuotaError{Snapshot: snapshot}
	}

	job := &domain.Job{
		ID:        uuid.NewString(),
		Owner:     owner,
		Params:    params,
		Status:    domain.JobStatusPending,
		CreatedAt: s.now(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("submit: create job: %w", err)
	}

	jobID := job.ID
	s.runner.Go("generation:"+jobID, func(ctx context.Context) error {
		return s.processor.Process(ctx, jobID)
	})

	s.logger.Info().
		Str("job_id", job.ID).
		Str("owner", owner).
		Str("model", params.Model).
		Msg("generation accepted")
	return job, nil
}

// Get returns a single job. Callers only ever see their own jobs; someone
// else's ID yields ErrForbidden rather than leaking existence via a 404.
func (s *GenerationService) Get(ctx context.Context, owner, jobID string) (*domain.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Owner != owner {
		return nil, domain.ErrForbidden
	}
	return job, nil
}

// List returns the owner's jobs newest first.
func (s *GenerationService) List(ctx context.Context, owner string, limit, offset int) ([]*domain.Job, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.jobs.ListByOwner(ctx, owner, limit, offset)
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Delete removes a job and best-effort reclaims its stored artifacts. A
// missing record is success: the caller wanted it gone and it is. An
// in-flight job's background loop notices the missing record and stops on
// its own.
func (s *GenerationService) Delete(ctx context.Context, owner, jobID string) error {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if job.Owner != owner {
		return domain.ErrForbidden
	}

	for _, objectURL := range []string{job.ArtifactURL, job.ThumbnailURL, job.Params.ReferenceAssetURL} {
		if objectURL == "" {
			continue
		}
		if err := s.store.Remove(ctx, objectURL); err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobID).Str("url", objectURL).Msg("artifact removal failed")
		}
	}

	if err := s.jobs.Delete(ctx, jobID); err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	s.logger.Info().Str("job_id", jobID).Str("owner", owner).Msg("generation deleted")
	return nil
}

// Usage reports the owner's current quota standing without consuming any.
func (s *GenerationService) Usage(ctx context.Context, owner string) (domain.QuotaSnapshot, error) {
	return s.guard.CheckAllowed(ctx, owner, domain.CapabilityAIGeneration)
}
