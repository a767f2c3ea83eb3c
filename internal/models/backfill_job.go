package models

import (
	"errors"
	"time"

	"github.com/biopeak-sync/internal/types"
)

// DefaultMaxRetries is the number of processor attempts a job gets before it
// becomes permanently terminal in the error state.
const DefaultMaxRetries = 3

// ErrDuplicateJob is returned by the job store when an insert loses the race
// against a concurrent request for the same user, period, and summary type.
var ErrDuplicateJob = errors.New("an active backfill job already exists for this period")

// BackfillJob represents one unit of requested historical synchronization:
// a single summary type over a bounded date range for one user.
type BackfillJob struct {
	ID                  string            `json:"jobId" db:"id"`
	UserID              string            `json:"userId" db:"user_id"`
	SummaryType         types.SummaryType `json:"summaryType" db:"summary_type"`
	PeriodStart         time.Time         `json:"periodStart" db:"period_start"`
	PeriodEnd           time.Time         `json:"periodEnd" db:"period_end"`
	Status              types.JobStatus   `json:"status" db:"status"`
	RequestedAt         time.Time         `json:"requestedAt" db:"requested_at"`
	CompletedAt         *time.Time        `json:"completedAt,omitempty" db:"completed_at"`
	ErrorMessage        *string           `json:"errorMessage,omitempty" db:"error_message"`
	ActivitiesProcessed int               `json:"activitiesProcessed" db:"activities_processed"`
	RetryCount          int               `json:"retryCount" db:"retry_count"`
	MaxRetries          int               `json:"maxRetries" db:"max_retries"`
	NextRetryAt         *time.Time        `json:"nextRetryAt,omitempty" db:"next_retry_at"`
	RateLimitResetAt    *time.Time        `json:"rateLimitResetAt,omitempty" db:"rate_limit_reset_at"`
	IsDuplicate         bool              `json:"isDuplicate" db:"is_duplicate"`
}

// PeriodDays returns the requested period length in whole days, rounded up.
// This is the vendor's rate-limit currency ("day-units").
func (j *BackfillJob) PeriodDays() int {
	d := j.PeriodEnd.Sub(j.PeriodStart)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// RetriesExhausted reports whether the job has consumed all its attempts
func (j *BackfillJob) RetriesExhausted() bool {
	return j.RetryCount >= j.MaxRetries
}

// RateLimited reports whether the job carries an unexpired rate-limit marker
func (j *BackfillJob) RateLimited(now time.Time) bool {
	return j.RateLimitResetAt != nil && j.RateLimitResetAt.After(now)
}
