package service

import (
	"context"
	"time"

	"github.com/biopeak-sync/internal/errors"
	"github.com/biopeak-sync/internal/logging"
	"github.com/biopeak-sync/internal/models"
	"github.com/biopeak-sync/internal/types"
)

// DefaultCompletionAge is how old an in_progress job must be before the
// reconciler assumes the vendor finished delivering.
const DefaultCompletionAge = 24 * time.Hour

// TypeCounts breaks job counts down for one summary type
type TypeCounts struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	InProgress int `json:"inProgress"`
	Pending    int `json:"pending"`
	Errors     int `json:"errors"`
}

// Summary aggregates a user's backfill jobs for display
type Summary struct {
	Total                    int                              `json:"total"`
	Completed                int                              `json:"completed"`
	InProgress               int                              `json:"inProgress"`
	Pending                  int                              `json:"pending"`
	Errors                   int                              `json:"errors"`
	TotalActivitiesProcessed int                              `json:"totalActivitiesProcessed"`
	BySummaryType            map[types.SummaryType]TypeCounts `json:"bySummaryType"`
}

// Summarize aggregates job records into summary counts. Pure computation,
// recomputed on every read.
func Summarize(jobs []*models.BackfillJob) *Summary {
	summary := &Summary{
		Total:         len(jobs),
		BySummaryType: make(map[types.SummaryType]TypeCounts),
	}

	for _, job := range jobs {
		counts := summary.BySummaryType[job.SummaryType]
		counts.Total++

		switch job.Status {
		case types.JobStatusCompleted:
			summary.Completed++
			counts.Completed++
		case types.JobStatusInProgress:
			summary.InProgress++
			counts.InProgress++
		case types.JobStatusPending:
			summary.Pending++
			counts.Pending++
		case types.JobStatusError:
			summary.Errors++
			counts.Errors++
		}

		summary.TotalActivitiesProcessed += job.ActivitiesProcessed
		summary.BySummaryType[job.SummaryType] = counts
	}

	return summary
}

// ReconcileStore is the persistence surface the reconciler needs
type ReconcileStore interface {
	ListStaleInProgress(ctx context.Context, cutoff time.Time) ([]*models.BackfillJob, error)
	MarkCompleted(ctx context.Context, jobID string, completedAt time.Time, activitiesProcessed int) error
}

// ActivityCounter counts delivered summaries for a job's period. Satisfied by
// *storage.ActivityRepository.
type ActivityCounter interface {
	CountForPeriod(ctx context.Context, userID string, summaryType types.SummaryType, start, end time.Time) (int, error)
}

// Reconciler implements the documented completion heuristic: Garmin delivers
// backfill data asynchronously and never signals completion, so a job that
// has been in_progress longer than the configured age is assumed done. The
// threshold is configuration, not a correctness bound.
type Reconciler struct {
	jobs          ReconcileStore
	activities    ActivityCounter
	completionAge time.Duration
}

// NewReconciler creates a reconciler. completionAge <= 0 selects the default.
// activities may be nil, in which case processed counts are left untouched.
func NewReconciler(jobs ReconcileStore, activities ActivityCounter, completionAge time.Duration) *Reconciler {
	if completionAge <= 0 {
		completionAge = DefaultCompletionAge
	}
	return &Reconciler{
		jobs:          jobs,
		activities:    activities,
		completionAge: completionAge,
	}
}

// Run marks stale in_progress jobs completed, stamping each with the number
// of summaries that actually arrived for its period. Returns how many jobs
// were reconciled.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-r.completionAge)

	stale, err := r.jobs.ListStaleInProgress(ctx, cutoff)
	if err != nil {
		return 0, errors.NewDatabaseError("stale job scan", err)
	}

	logger := logging.FromContext(ctx)
	reconciled := 0
	for _, job := range stale {
		processed := job.ActivitiesProcessed
		if r.activities != nil {
			count, err := r.activities.CountForPeriod(ctx, job.UserID, job.SummaryType, job.PeriodStart, job.PeriodEnd)
			if err != nil {
				logger.WithField("jobId", job.ID).WithError(err).Warn("Failed to count delivered summaries, keeping existing count")
			} else {
				processed = count
			}
		}

		if err := r.jobs.MarkCompleted(ctx, job.ID, now, processed); err != nil {
			logger.WithField("jobId", job.ID).WithError(err).Warn("Failed to reconcile stale job")
			continue
		}
		reconciled++
	}

	if reconciled > 0 {
		logger.WithField("reconciled", reconciled).Info("Marked stale backfill jobs completed")
	}

	return reconciled, nil
}
