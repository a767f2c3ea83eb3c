package service

import (
	"context"
	"time"

	"github.com/biopeak-sync/internal/errors"
	"github.com/biopeak-sync/internal/garmin"
	"github.com/biopeak-sync/internal/logging"
	"github.com/biopeak-sync/internal/models"
	"github.com/biopeak-sync/internal/types"
)

// ActivityStore persists normalized summaries. Satisfied by
// *storage.ActivityRepository.
type ActivityStore interface {
	InsertBatch(ctx context.Context, summaries []models.ActivitySummary) error
}

// OverlapStore finds jobs whose period covers a delivered summary
type OverlapStore interface {
	ListOverlapping(ctx context.Context, userID string, summaryType types.SummaryType, at time.Time) ([]*models.BackfillJob, error)
	AddActivitiesProcessed(ctx context.Context, jobID string, delta int) error
}

// IngestService normalizes vendor push payloads and stores them, crediting
// delivered summaries to the backfill jobs that requested them
type IngestService struct {
	activities ActivityStore
	jobs       OverlapStore
}

// NewIngestService creates an ingest service
func NewIngestService(activities ActivityStore, jobs OverlapStore) *IngestService {
	return &IngestService{
		activities: activities,
		jobs:       jobs,
	}
}

// Ingest maps one vendor payload and persists the result. Returns the number
// of summaries stored.
func (s *IngestService) Ingest(ctx context.Context, userID string, payload []byte) (int, error) {
	summaries, err := garmin.MapPayload(userID, payload, time.Now().UTC())
	if err != nil {
		return 0, errors.NewValidationError("payload", err.Error())
	}
	if len(summaries) == 0 {
		return 0, nil
	}

	if err := s.activities.InsertBatch(ctx, summaries); err != nil {
		return 0, errors.NewDatabaseError("activity insert", err)
	}

	s.creditJobs(ctx, userID, summaries)

	return len(summaries), nil
}

// creditJobs bumps activities_processed on the jobs whose period covers each
// delivered summary. Best effort: attribution failures only log.
func (s *IngestService) creditJobs(ctx context.Context, userID string, summaries []models.ActivitySummary) {
	logger := logging.FromContext(ctx).WithField("userId", userID)

	type key struct {
		summaryType types.SummaryType
		jobID       string
	}
	credits := make(map[key]int)

	for _, summary := range summaries {
		jobs, err := s.jobs.ListOverlapping(ctx, userID, summary.SummaryType, summary.StartTime)
		if err != nil {
			logger.WithError(err).Warn("Failed to find jobs for delivered summary")
			continue
		}
		for _, job := range jobs {
			credits[key{summary.SummaryType, job.ID}]++
		}
	}

	for k, delta := range credits {
		if err := s.jobs.AddActivitiesProcessed(ctx, k.jobID, delta); err != nil {
			logger.WithField("jobId", k.jobID).WithError(err).Warn("Failed to credit delivered summaries")
		}
	}
}
