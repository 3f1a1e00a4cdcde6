package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"server/internal/adapter/repo"
	"server/internal/domain"
	"server/internal/storage"
)

type stubGuard struct {
	snapshot domain.QuotaSnapshot
	err      error
	checks   int
}

func (g *stubGuard) CheckAllowed(ctx context.Context, owner, capability string) (domain.QuotaSnapshot, error) {
	g.checks++
	return g.snapshot, g.err
}

// inlineRunner executes handed-off work on a fresh goroutine, like the real
// pool but without the semaphore.
type inlineRunner struct{ handoffs int }

func (r *inlineRunner) Go(name string, fn func(ctx context.Context) error) {
	r.handoffs++
	go func() { _ = fn(context.Background()) }()
}

// completingProcessor settles the job as completed, standing in for the full
// background pipeline.
type completingProcessor struct{ jobs domain.JobRepository }

func (p *completingProcessor) Process(ctx context.Context, jobID string) error {
	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	now := time.Now()
	job.Status = domain.JobStatusCompleted
	job.ArtifactURL = "https://cdn.example.com/bucket/generated/videos/" + jobID + "/video.mp4"
	job.CompletedAt = &now
	return p.jobs.Update(ctx, job)
}

type noopProcessor struct{}

func (noopProcessor) Process(ctx context.Context, jobID string) error { return nil }

type stubStore struct {
	removed   []string
	removeErr error
}

func (s *stubStore) Upload(ctx context.Context, localPath, key, contentType string) (*storage.UploadResult, error) {
	return &storage.UploadResult{Key: key, URL: "https://cdn.example.com/bucket/" + key}, nil
}

func (s *stubStore) Remove(ctx context.Context, objectURL string) error {
	s.removed = append(s.removed, objectURL)
	return s.removeErr
}

func (s *stubStore) StillFrameURL(key string, offsetSeconds int) string {
	return "https://media.example.com/" + key
}

func allowedGuard() *stubGuard {
	return &stubGuard{snapshot: domain.QuotaSnapshot{Allowed: true, Used: 0, Limit: 1, Plan: domain.PlanFree}}
}

func newService(jobs domain.JobRepository, guard QuotaGuard, proc Processor, runner TaskRunner, store storage.Store) *GenerationService {
	return NewGenerationService(Options{
		Jobs:      jobs,
		Guard:     guard,
		Processor: proc,
		Runner:    runner,
		Store:     store,
		Logger:    zerolog.New(io.Discard),
	})
}

func validParams() domain.GenerationParams {
	return domain.GenerationParams{Prompt: "a lighthouse in a storm", DurationSeconds: 6}
}

func TestSubmitAcceptsAndCompletesInBackground(t *testing.T) {
	registry := repo.NewJobRegistry()
	runner := &inlineRunner{}
	svc := newService(registry, allowedGuard(), &completingProcessor{jobs: registry}, runner, &stubStore{})

	job, err := svc.Submit(context.Background(), "owner-1", validParams())
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusPending, job.Status)
	require.NotEmpty(t, job.ID)
	require.Equal(t, domain.DefaultModel, job.Params.Model)
	require.Equal(t, 1, runner.handoffs)

	require.Eventually(t, func() bool {
		got, err := registry.GetByID(context.Background(), job.ID)
		return err == nil && got.Status == domain.JobStatusCompleted
	}, time.Second, 5*time.Millisecond)
}

func TestSubmitRejectsExhaustedQuotaBeforeCreatingAnything(t *testing.T) {
	registry := repo.NewJobRegistry()
	guard := &stubGuard{snapshot: domain.QuotaSnapshot{Allowed: false, Used: 1, Limit: 1, Plan: domain.PlanFree}}
	runner := &inlineRunner{}
	svc := newService(registry, guard, noopProcessor{}, runner, &stubStore{})

	_, err := svc.Submit(context.Background(), "owner-1", validParams())
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)

	var quotaErr *domain.QuotaError
	require.ErrorAs(t, err, &quotaErr)
	require.Equal(t, 1, quotaErr.Snapshot.Used)

	require.Zero(t, registry.Len(), "a rejected request must leave no job behind")
	require.Zero(t, runner.handoffs)
}

func TestSubmitRejectsInvalidParams(t *testing.T) {
	registry := repo.NewJobRegistry()
	guard := allowedGuard()
	svc := newService(registry, guard, noopProcessor{}, &inlineRunner{}, &stubStore{})

	_, err := svc.Submit(context.Background(), "owner-1", domain.GenerationParams{Prompt: "   "})
	require.ErrorIs(t, err, domain.ErrInvalidParams)
	require.Zero(t, guard.checks, "validation runs before admission")
	require.Zero(t, registry.Len())
}

func TestGetEnforcesOwnership(t *testing.T) {
	registry := repo.NewJobRegistry()
	svc := newService(registry, allowedGuard(), noopProcessor{}, &inlineRunner{}, &stubStore{})

	job, err := svc.Submit(context.Background(), "owner-1", validParams())
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), "owner-1", job.ID)
	require.NoError(t, err)
	require.Equal(t, job.ID, got.ID)

	_, err = svc.Get(context.Background(), "intruder", job.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.Get(context.Background(), "owner-1", "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListClampsWindow(t *testing.T) {
	registry := repo.NewJobRegistry()
	svc := newService(registry, allowedGuard(), noopProcessor{}, &inlineRunner{}, &stubStore{})

	for i := 0; i < 25; i++ {
		_, err := svc.Submit(context.Background(), "owner-1", validParams())
		require.NoError(t, err)
	}

	jobs, err := svc.List(context.Background(), "owner-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, jobs, defaultListLimit)

	jobs, err = svc.List(context.Background(), "owner-1", 500, -3)
	require.NoError(t, err)
	require.Len(t, jobs, defaultListLimit)
}

func TestDeleteReclaimsArtifactsAndIsIdempotent(t *testing.T) {
	registry := repo.NewJobRegistry()
	store := &stubStore{}
	svc := newService(registry, allowedGuard(), noopProcessor{}, &inlineRunner{}, store)

	params := validParams()
	params.ReferenceAssetURL = "https://cdn.example.com/bucket/uploads/owner-1/ref.png"
	job, err := svc.Submit(context.Background(), "owner-1", params)
	require.NoError(t, err)

	job.Status = domain.JobStatusCompleted
	job.ArtifactURL = "https://cdn.example.com/bucket/generated/videos/x/video.mp4"
	job.ThumbnailURL = "https://media.example.com/generated/videos/x/video.mp4?format=jpg"
	require.NoError(t, registry.Update(context.Background(), job))

	require.NoError(t, svc.Delete(context.Background(), "owner-1", job.ID))
	require.Equal(t, []string{job.ArtifactURL, job.ThumbnailURL, params.ReferenceAssetURL}, store.removed)

	_, err = registry.GetByID(context.Background(), job.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	// Gone is the desired state, so a repeat delete succeeds.
	require.NoError(t, svc.Delete(context.Background(), "owner-1", job.ID))
}

func TestDeleteStillRemovesRecordWhenStoreFails(t *testing.T) {
	registry := repo.NewJobRegistry()
	store := &stubStore{removeErr: errors.New("bucket offline")}
	svc := newService(registry, allowedGuard(), noopProcessor{}, &inlineRunner{}, store)

	job, err := svc.Submit(context.Background(), "owner-1", validParams())
	require.NoError(t, err)
	job.ArtifactURL = "https://cdn.example.com/bucket/generated/videos/x/video.mp4"
	require.NoError(t, registry.Update(context.Background(), job))

	require.NoError(t, svc.Delete(context.Background(), "owner-1", job.ID))
	_, err = registry.GetByID(context.Background(), job.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteRejectsForeignOwner(t *testing.T) {
	registry := repo.NewJobRegistry()
	svc := newService(registry, allowedGuard(), noopProcessor{}, &inlineRunner{}, &stubStore{})

	job, err := svc.Submit(context.Background(), "owner-1", validParams())
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(context.Background(), "intruder", job.ID), domain.ErrForbidden)
	_, err = registry.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
}

func TestUsageReportsWithoutConsuming(t *testing.T) {
	guard := &stubGuard{snapshot: domain.QuotaSnapshot{Allowed: true, Used: 3, Limit: 20, Plan: domain.PlanStarter}}
	svc := newService(repo.NewJobRegistry(), guard, noopProcessor{}, &inlineRunner{}, &stubStore{})

	snap, err := svc.Usage(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Equal(t, 3, snap.Used)
	require.Equal(t, domain.PlanStarter, snap.Plan)
}
