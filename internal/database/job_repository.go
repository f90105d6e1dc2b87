package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gopost/engine/internal/domain"
)

// jobSelectList is the column list for SELECT on publication_jobs (single
// source for schema changes).
const jobSelectList = `id, tenant_id, platform, content_type, body, media_url,
			status, scheduled_at, published_at, result_url, error_message,
			created_at, updated_at`

// JobRepository is the durable job store. All scheduler access to
// publication jobs goes through the methods here; there are no raw queries
// elsewhere.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository creates a new repository.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// QueryDue returns scheduled jobs whose scheduled time is at or before now.
// It does not claim them; claiming is a separate conditional transition so
// the race window is explicit and testable.
func (r *JobRepository) QueryDue(ctx context.Context, now time.Time, limit int) ([]domain.PublicationJob, error) {
	query := `
		SELECT ` + jobSelectList + `
		FROM publication_jobs
		WHERE status = $1
		  AND scheduled_at IS NOT NULL
		  AND scheduled_at <= $2
		ORDER BY scheduled_at ASC
		LIMIT $3`

	jobs := []domain.PublicationJob{}
	err := r.db.SelectContext(ctx, &jobs, query, domain.JobStatusScheduled, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query due jobs: %w", err)
	}
	return jobs, nil
}

// Claim performs the atomic conditional status transition that assigns a job
// to exactly one dispatch attempt. It returns domain.ErrClaimConflict when
// the row is no longer in fromStatus: another tick, another engine instance,
// or a cancellation won the transition.
func (r *JobRepository) Claim(ctx context.Context, id string, from, to domain.JobStatus) error {
	query := `
		UPDATE publication_jobs
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`

	result, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return domain.ErrClaimConflict
	}
	return nil
}

// MarkPublished records a successful dispatch: terminal published state,
// publish timestamp, and the platform-assigned result URL.
func (r *JobRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time, resultURL string) error {
	query := `
		UPDATE publication_jobs
		SET status = $2,
		    published_at = $3,
		    result_url = $4,
		    updated_at = NOW()
		WHERE id = $1`
	if err := r.execExpectOneRow(ctx, query, id, domain.JobStatusPublished, publishedAt.UTC(), resultURL); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

// MarkFailed records a failed dispatch with the normalized error text.
// Failed is terminal; retrying means creating a new job upstream.
func (r *JobRepository) MarkFailed(ctx context.Context, id, errorMsg string) error {
	query := `
		UPDATE publication_jobs
		SET status = $2,
		    error_message = $3,
		    updated_at = NOW()
		WHERE id = $1`
	if err := r.execExpectOneRow(ctx, query, id, domain.JobStatusFailed, errorMsg); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// Cancel rewinds a scheduled job to draft and clears its scheduled time.
// It uses the same conditional transition as Claim, so a cancellation racing
// a claim resolves to exactly one winner; the loser sees ErrClaimConflict.
func (r *JobRepository) Cancel(ctx context.Context, id string) error {
	query := `
		UPDATE publication_jobs
		SET status = $3, scheduled_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $2`

	result, err := r.db.ExecContext(ctx, query, id, domain.JobStatusScheduled, domain.JobStatusDraft)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return domain.ErrClaimConflict
	}
	return nil
}

// GetByID retrieves a single job.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.PublicationJob, error) {
	query := `SELECT ` + jobSelectList + ` FROM publication_jobs WHERE id = $1`

	var job domain.PublicationJob
	err := r.db.GetContext(ctx, &job, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job by id: %w", err)
	}
	return &job, nil
}

// GetStats returns job counts per status plus the average scheduled-to-
// published lag over the last hour. The processing count is the monitoring
// hook for jobs stuck after a crash mid-dispatch.
func (r *JobRepository) GetStats(ctx context.Context) (*domain.JobStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'draft') as draft,
			COUNT(*) FILTER (WHERE status = 'scheduled') as scheduled,
			COUNT(*) FILTER (WHERE status = 'processing') as processing,
			COUNT(*) FILTER (WHERE status = 'published') as published,
			COUNT(*) FILTER (WHERE status = 'failed') as failed,
			COALESCE(AVG(EXTRACT(EPOCH FROM (published_at - scheduled_at)))
				FILTER (WHERE status = 'published' AND published_at > NOW() - INTERVAL '1 hour'), 0) as avg_publish_lag_seconds
		FROM publication_jobs`

	var stats domain.JobStats
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.Draft,
		&stats.Scheduled,
		&stats.Processing,
		&stats.Published,
		&stats.Failed,
		&stats.AvgPublishLagSeconds,
	)
	if err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}
	return &stats, nil
}

// execExpectOneRow runs an exec and returns domain.ErrNotFound when no row
// was affected.
func (r *JobRepository) execExpectOneRow(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
