// Package orchestrator drives a generation job's state machine end to end:
// submit to the provider, poll to completion, materialize the artifact and
// record usage, mutating only the job record along the way.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/materialize"
	"server/internal/providers/video"
)

// Materializer is the slice of the materialize package the orchestrator needs.
type Materializer interface {
	Materialize(ctx context.Context, jobID string, artifact video.Artifact) (*materialize.Result, error)
}

// UsageRecorder records one consumed unit after a successful completion.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, owner, capability string) error
}

// Options wires an Orchestrator.
type Options struct {
	Jobs         domain.JobRepository
	Provider     video.Provider
	Materializer Materializer
	Usage        UsageRecorder
	Logger       infra.Logger
	Poll         PollConfig
	Now          func() time.Time
}

// Orchestrator owns the background processing of jobs. Exactly one Process
// call runs per job; it is the sole mutator of that job's record.
type Orchestrator struct {
	jobs         domain.JobRepository
	provider     video.Provider
	materializer Materializer
	usage        UsageRecorder
	logger       infra.Logger
	poll         PollConfig
	now          func() time.Time
}

// New constructs an Orchestrator.
func New(opts Options) *Orchestrator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	poll := opts.Poll
	if poll.Interval <= 0 {
		poll.Interval = 10 * time.Second
	}
	if poll.MaxAttempts <= 0 {
		poll.MaxAttempts = 60
	}
	return &Orchestrator{
		jobs:         opts.Jobs,
		provider:     opts.Provider,
		materializer: opts.Materializer,
		usage:        opts.Usage,
		logger:       opts.Logger,
		poll:         poll,
		now:          now,
	}
}

// Process drives one job to a terminal state. Every failure past acceptance
// is recorded on the job's error message; nothing is ever re-thrown to the
// caller, and a missing record (deleted mid-flight) is a silent stop, never a
// re-creation.
func (o *Orchestrator) Process(ctx context.Context, jobID string) error {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			o.logger.Debug().Str("job_id", jobID).Msg("orchestrator: job gone before start")
			return nil
		}
		return fmt.Errorf("orchestrator: load job %s: %w", jobID, err)
	}
	if job.Status.Terminal() {
		// Duplicate invocation; the first run already settled this job.
		return nil
	}

	job.Status = domain.JobStatusProcessing
	if err := o.jobs.Update(ctx, job); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("orchestrator: mark processing %s: %w", jobID, err)
	}
	o.logger.Info().Str("job_id", jobID).Str("model", job.Params.Model).Msg("orchestrator: processing")

	op, err := o.provider.Submit(ctx, video.SubmitRequest{
		Prompt:            job.Params.Prompt,
		Model:             job.Params.Model,
		DurationSeconds:   job.Params.DurationSeconds,
		AspectRatio:       job.Params.AspectRatio,
		ReferenceAssetURL: job.Params.ReferenceAssetURL,
		RequestID:         job.ID,
	})
	if err != nil {
		return o.fail(ctx, job, fmt.Sprintf("video generation failed: %v", err))
	}

	var last *video.PollResult
	pollErr := Poll(ctx, o.poll,
		func(ctx context.Context) (bool, error) {
			result, err := o.provider.Poll(ctx, op)
			if err != nil {
				return false, err
			}
			last = result
			return result.Done, nil
		},
		func(ctx context.Context) bool {
			_, err := o.jobs.GetByID(ctx, job.ID)
			return errors.Is(err, domain.ErrNotFound)
		},
	)
	switch {
	case pollErr == nil:
	case errors.Is(pollErr, ErrAborted):
		o.logger.Info().Str("job_id", job.ID).Msg("orchestrator: job deleted mid-flight, abandoning")
		return nil
	case errors.Is(pollErr, domain.ErrPollTimeout):
		return o.fail(ctx, job, "video generation timeout: provider did not complete in time")
	default:
		return o.fail(ctx, job, fmt.Sprintf("video generation failed: %v", pollErr))
	}

	if last == nil || last.Artifact == nil {
		return o.fail(ctx, job, domain.ErrNoArtifact.Error())
	}

	materialized, err := o.materializer.Materialize(ctx, job.ID, *last.Artifact)
	if err != nil {
		return o.fail(ctx, job, fmt.Sprintf("artifact materialization failed: %v", err))
	}

	completedAt := o.now()
	job.Status = domain.JobStatusCompleted
	job.ArtifactURL = materialized.ArtifactURL
	job.ThumbnailURL = materialized.ThumbnailURL
	job.CompletedAt = &completedAt
	job.ProviderMetadata = mergeMetadata(last.Metadata, materialized.Metadata, map[string]any{
		"duration_seconds": job.Params.DurationSeconds,
	})
	if err := o.jobs.Update(ctx, job); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("orchestrator: mark completed %s: %w", jobID, err)
	}
	o.logger.Info().Str("job_id", job.ID).Str("artifact", job.ArtifactURL).Msg("orchestrator: completed")

	// The counter is advisory; a terminal status never regresses over it.
	if err := o.usage.RecordUsage(ctx, job.Owner, domain.CapabilityAIGeneration); err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("orchestrator: usage recording failed")
	}
	return nil
}

// fail settles the job as failed with a human-readable message. A record
// deleted in the meantime stays deleted.
func (o *Orchestrator) fail(ctx context.Context, job *domain.Job, message string) error {
	o.logger.Error().Str("job_id", job.ID).Str("reason", message).Msg("orchestrator: job failed")
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = message
	if err := o.jobs.Update(ctx, job); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("orchestrator: mark failed %s: %w", job.ID, err)
	}
	return nil
}

func mergeMetadata(parts ...map[string]any) map[string]any {
	merged := make(map[string]any)
	for _, part := range parts {
		for k, v := range part {
			merged[k] = v
		}
	}
	return merged
}
