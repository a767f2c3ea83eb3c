package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/biopeak-sync/internal/models"
	"github.com/biopeak-sync/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgUniqueViolation is the SQLSTATE Postgres reports for unique index conflicts.
const pgUniqueViolation = "23505"

const backfillJobColumns = `
	id, user_id, summary_type, period_start, period_end, status,
	requested_at, completed_at, error_message, activities_processed,
	retry_count, max_retries, next_retry_at, rate_limit_reset_at, is_duplicate`

// BackfillJobRepository handles backfill job persistence
type BackfillJobRepository struct {
	db *PostgresDB
}

// NewBackfillJobRepository creates a new backfill job repository
func NewBackfillJobRepository(db *PostgresDB) *BackfillJobRepository {
	return &BackfillJobRepository{db: db}
}

// Create inserts a new backfill job row
func (r *BackfillJobRepository) Create(ctx context.Context, job *models.BackfillJob) error {
	query := `
		INSERT INTO garmin_backfill_jobs (
			id, user_id, summary_type, period_start, period_end, status,
			requested_at, completed_at, error_message, activities_processed,
			retry_count, max_retries, next_retry_at, rate_limit_reset_at, is_duplicate
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		job.ID,
		job.UserID,
		job.SummaryType,
		job.PeriodStart,
		job.PeriodEnd,
		job.Status,
		job.RequestedAt,
		job.CompletedAt,
		job.ErrorMessage,
		job.ActivitiesProcessed,
		job.RetryCount,
		job.MaxRetries,
		job.NextRetryAt,
		job.RateLimitResetAt,
		job.IsDuplicate,
	)
	if err != nil {
		// The uq_backfill_jobs_active partial index is the last line of
		// defense against racing intake requests; surface the loser as a
		// duplicate, not a database failure
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return models.ErrDuplicateJob
		}
		return fmt.Errorf("failed to create backfill job: %w", err)
	}

	return nil
}

// GetByID retrieves a backfill job by ID
func (r *BackfillJobRepository) GetByID(ctx context.Context, jobID string) (*models.BackfillJob, error) {
	query := `SELECT` + backfillJobColumns + `
		FROM garmin_backfill_jobs
		WHERE id = $1
	`

	job, err := scanJob(r.db.Pool().QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("backfill job not found: %s", jobID)
		}
		return nil, fmt.Errorf("failed to get backfill job: %w", err)
	}

	return job, nil
}

// FindActive returns the non-error job covering the exact (user, period, type)
// tuple, or nil when none exists. This backs intake deduplication.
func (r *BackfillJobRepository) FindActive(ctx context.Context, userID string, periodStart, periodEnd time.Time, summaryType types.SummaryType) (*models.BackfillJob, error) {
	query := `SELECT` + backfillJobColumns + `
		FROM garmin_backfill_jobs
		WHERE user_id = $1
		  AND period_start = $2
		  AND period_end = $3
		  AND summary_type = $4
		  AND status <> 'error'
		LIMIT 1
	`

	job, err := scanJob(r.db.Pool().QueryRow(ctx, query, userID, periodStart, periodEnd, summaryType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up active backfill job: %w", err)
	}

	return job, nil
}

// ListEligible returns jobs the processor may claim: pending jobs and error
// jobs whose retry delay elapsed, with retries remaining, oldest request
// first. userID filters to one user when non-empty.
func (r *BackfillJobRepository) ListEligible(ctx context.Context, userID string, now time.Time, limit int) ([]*models.BackfillJob, error) {
	query := `SELECT` + backfillJobColumns + `
		FROM garmin_backfill_jobs
		WHERE retry_count < max_retries
		  AND (status = 'pending'
		       OR (status = 'error' AND (next_retry_at IS NULL OR next_retry_at < $1)))
		  AND ($2 = '' OR user_id = $2)
		ORDER BY requested_at ASC
		LIMIT $3
	`

	rows, err := r.db.Pool().Query(ctx, query, now, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible backfill jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListByUser returns all of a user's jobs, newest request first
func (r *BackfillJobRepository) ListByUser(ctx context.Context, userID string) ([]*models.BackfillJob, error) {
	query := `SELECT` + backfillJobColumns + `
		FROM garmin_backfill_jobs
		WHERE user_id = $1
		ORDER BY requested_at DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list backfill jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListOverlapping returns non-error jobs of a type whose period contains the
// given instant. The webhook ingester uses it to attribute delivered
// summaries to the jobs that requested them.
func (r *BackfillJobRepository) ListOverlapping(ctx context.Context, userID string, summaryType types.SummaryType, at time.Time) ([]*models.BackfillJob, error) {
	query := `SELECT` + backfillJobColumns + `
		FROM garmin_backfill_jobs
		WHERE user_id = $1
		  AND summary_type = $2
		  AND status <> 'error'
		  AND period_start <= $3
		  AND period_end >= $3
	`

	rows, err := r.db.Pool().Query(ctx, query, userID, summaryType, at)
	if err != nil {
		return nil, fmt.Errorf("failed to list overlapping backfill jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListStaleInProgress returns in_progress jobs requested before the cutoff.
// Garmin never signals backfill completion, so jobs past a configured age are
// reconciled to completed heuristically.
func (r *BackfillJobRepository) ListStaleInProgress(ctx context.Context, cutoff time.Time) ([]*models.BackfillJob, error) {
	query := `SELECT` + backfillJobColumns + `
		FROM garmin_backfill_jobs
		WHERE status = 'in_progress'
		  AND requested_at < $1
	`

	rows, err := r.db.Pool().Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale backfill jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// Claim conditionally moves a job to in_progress. The status and retry_count
// guards make the update a compare-and-swap: a concurrent processor pass that
// already claimed or advanced the job leaves RowsAffected at zero, and the
// caller must skip the job.
func (r *BackfillJobRepository) Claim(ctx context.Context, jobID string, fromStatus types.JobStatus, retryCount int) (bool, error) {
	query := `
		UPDATE garmin_backfill_jobs
		SET status = 'in_progress'
		WHERE id = $1 AND status = $2 AND retry_count = $3
	`

	result, err := r.db.Pool().Exec(ctx, query, jobID, fromStatus, retryCount)
	if err != nil {
		return false, fmt.Errorf("failed to claim backfill job: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// MarkAccepted records that the vendor accepted the backfill request; the job
// stays in_progress until delivery is reconciled
func (r *BackfillJobRepository) MarkAccepted(ctx context.Context, jobID string) error {
	query := `
		UPDATE garmin_backfill_jobs
		SET status = 'in_progress', error_message = NULL, rate_limit_reset_at = NULL
		WHERE id = $1
	`
	return r.exec(ctx, query, "mark backfill job accepted", jobID)
}

// MarkCompleted finalizes a job with its processed summary count
func (r *BackfillJobRepository) MarkCompleted(ctx context.Context, jobID string, completedAt time.Time, activitiesProcessed int) error {
	query := `
		UPDATE garmin_backfill_jobs
		SET status = 'completed', completed_at = $2, activities_processed = $3
		WHERE id = $1
	`
	return r.exec(ctx, query, "mark backfill job completed", jobID, completedAt, activitiesProcessed)
}

// MarkFailure records a processing failure with retry bookkeeping. nextRetryAt
// is nil once retries are exhausted, which makes the error state terminal.
func (r *BackfillJobRepository) MarkFailure(ctx context.Context, jobID string, retryCount int, nextRetryAt *time.Time, errorMessage string) error {
	query := `
		UPDATE garmin_backfill_jobs
		SET status = 'error', retry_count = $2, next_retry_at = $3, error_message = $4
		WHERE id = $1
	`
	return r.exec(ctx, query, "mark backfill job failed", jobID, retryCount, nextRetryAt, errorMessage)
}

// MarkError sets the error state without touching retry bookkeeping. Intake
// and token failures use this: they are not processor retries.
func (r *BackfillJobRepository) MarkError(ctx context.Context, jobID string, errorMessage string) error {
	query := `
		UPDATE garmin_backfill_jobs
		SET status = 'error', error_message = $2
		WHERE id = $1
	`
	return r.exec(ctx, query, "mark backfill job errored", jobID, errorMessage)
}

// SetRateLimitReset stamps a job with the instant its user's day-unit budget
// frees up again
func (r *BackfillJobRepository) SetRateLimitReset(ctx context.Context, jobID string, resetAt time.Time) error {
	query := `
		UPDATE garmin_backfill_jobs
		SET rate_limit_reset_at = $2
		WHERE id = $1
	`
	return r.exec(ctx, query, "set backfill job rate limit reset", jobID, resetAt)
}

// HasActiveRateLimit reports whether any of the user's jobs carries an
// unexpired rate_limit_reset_at marker
func (r *BackfillJobRepository) HasActiveRateLimit(ctx context.Context, userID string, now time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM garmin_backfill_jobs
			WHERE user_id = $1 AND rate_limit_reset_at > $2
		)
	`

	var limited bool
	if err := r.db.Pool().QueryRow(ctx, query, userID, now).Scan(&limited); err != nil {
		return false, fmt.Errorf("failed to check rate limit state: %w", err)
	}

	return limited, nil
}

// AddActivitiesProcessed increments a job's delivered-summary counter
func (r *BackfillJobRepository) AddActivitiesProcessed(ctx context.Context, jobID string, delta int) error {
	query := `
		UPDATE garmin_backfill_jobs
		SET activities_processed = activities_processed + $2
		WHERE id = $1
	`
	return r.exec(ctx, query, "add processed activities", jobID, delta)
}

func (r *BackfillJobRepository) exec(ctx context.Context, query, operation string, args ...interface{}) error {
	result, err := r.db.Pool().Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", operation, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("backfill job not found")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.BackfillJob, error) {
	var job models.BackfillJob
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.SummaryType,
		&job.PeriodStart,
		&job.PeriodEnd,
		&job.Status,
		&job.RequestedAt,
		&job.CompletedAt,
		&job.ErrorMessage,
		&job.ActivitiesProcessed,
		&job.RetryCount,
		&job.MaxRetries,
		&job.NextRetryAt,
		&job.RateLimitResetAt,
		&job.IsDuplicate,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]*models.BackfillJob, error) {
	var jobs []*models.BackfillJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backfill job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backfill jobs: %w", err)
	}
	return jobs, nil
}
