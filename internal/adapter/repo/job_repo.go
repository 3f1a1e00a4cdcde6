package repo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
	"server/internal/infra"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL. Records are
// retained until an explicit delete; nothing here expires rows.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO generations (id, owner_id, prompt, model, duration_seconds, aspect_ratio, reference_url, status, provider_metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Owner,
		job.Params.Prompt,
		job.Params.Model,
		job.Params.DurationSeconds,
		job.Params.AspectRatio,
		nullableString(job.Params.ReferenceAssetURL),
		job.Status,
		job.ProviderMetadata,
		job.CreatedAt,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	query := `
SELECT id, owner_id, prompt, model, duration_seconds, aspect_ratio, reference_url, status, artifact_url, thumbnail_url, error_message, provider_metadata, created_at, completed_at
FROM generations
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, id)
	return scanJob(row)
}

// ListByOwner returns the owner's jobs newest first.
func (r *JobRepositoryPG) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*domain.Job, error) {
	query := `
SELECT id, owner_id, prompt, model, duration_seconds, aspect_ratio, reference_url, status, artifact_url, thumbnail_url, error_message, provider_metadata, created_at, completed_at
FROM generations
WHERE owner_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3;
`
	rows, err := r.pool.Query(ctx, query, owner, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Update persists the job's mutable fields.
func (r *JobRepositoryPG) Update(ctx context.Context, job *domain.Job) error {
	query := `
UPDATE generations
SET status = $2,
    artifact_url = $3,
    thumbnail_url = $4,
    error_message = $5,
    provider_metadata = COALESCE($6, provider_metadata),
    completed_at = $7
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		nullableString(job.ArtifactURL),
		nullableString(job.ThumbnailURL),
		nullableString(job.ErrorMessage),
		job.ProviderMetadata,
		job.CompletedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes the job record. Deleting an unknown id is not an error.
func (r *JobRepositoryPG) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
DELETE FROM generations
WHERE id = $1;
`, id)
	return err
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var reference, artifactURL, thumbnailURL, errorMessage *string
	if err := row.Scan(
		&job.ID,
		&job.Owner,
		&job.Params.Prompt,
		&job.Params.Model,
		&job.Params.DurationSeconds,
		&job.Params.AspectRatio,
		&reference,
		&job.Status,
		&artifactURL,
		&thumbnailURL,
		&errorMessage,
		&job.ProviderMetadata,
		&job.CreatedAt,
		&job.CompletedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	job.Params.ReferenceAssetURL = derefString(reference)
	job.ArtifactURL = derefString(artifactURL)
	job.ThumbnailURL = derefString(thumbnailURL)
	job.ErrorMessage = derefString(errorMessage)
	return &job, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
