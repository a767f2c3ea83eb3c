// Package service implements the backfill pipeline's business logic: request
// intake, status aggregation, and the retry backoff schedule.
package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/biopeak-sync/internal/errors"
	"github.com/biopeak-sync/internal/logging"
	"github.com/biopeak-sync/internal/models"
	"github.com/biopeak-sync/internal/types"
	"github.com/google/uuid"
)

// Vendor-imposed request policy
const (
	DefaultMaxPeriodDays = 90
	DefaultMaxLookback   = 4380 * time.Hour // ~6 months
)

// JobStore is the job persistence surface intake needs
type JobStore interface {
	Create(ctx context.Context, job *models.BackfillJob) error
	FindActive(ctx context.Context, userID string, periodStart, periodEnd time.Time, summaryType types.SummaryType) (*models.BackfillJob, error)
	MarkAccepted(ctx context.Context, jobID string) error
	MarkError(ctx context.Context, jobID string, errorMessage string) error
}

// TokenSource provides validated vendor credentials. Satisfied by
// *token.Service.
type TokenSource interface {
	EnsureValidToken(ctx context.Context, userID string) (*models.TokenRecord, error)
}

// Vendor performs the backfill API call. Satisfied by *garmin.Client.
type Vendor interface {
	RequestBackfill(ctx context.Context, accessToken, tokenSecret string, summaryType types.SummaryType, start, end time.Time) error
}

// IntakeRequest is a user's request for historical data
type IntakeRequest struct {
	UserID       string
	PeriodStart  time.Time
	PeriodEnd    time.Time
	SummaryTypes []types.SummaryType
}

// TypeResult is the per-summary-type outcome of an intake request
type TypeResult struct {
	SummaryType types.SummaryType  `json:"summaryType"`
	Result      types.IntakeResult `json:"status"`
	JobID       string             `json:"jobId,omitempty"`
}

// IntakeService validates and records backfill requests
type IntakeService struct {
	jobs          JobStore
	tokens        TokenSource
	vendor        Vendor
	maxRetries    int
	maxPeriodDays int
	maxLookback   time.Duration
}

// NewIntakeService creates an intake service. Zero limits select the defaults.
func NewIntakeService(jobs JobStore, tokens TokenSource, vendor Vendor, maxRetries, maxPeriodDays int, maxLookback time.Duration) *IntakeService {
	if maxRetries <= 0 {
		maxRetries = models.DefaultMaxRetries
	}
	if maxPeriodDays <= 0 {
		maxPeriodDays = DefaultMaxPeriodDays
	}
	if maxLookback <= 0 {
		maxLookback = DefaultMaxLookback
	}
	return &IntakeService{
		jobs:          jobs,
		tokens:        tokens,
		vendor:        vendor,
		maxRetries:    maxRetries,
		maxPeriodDays: maxPeriodDays,
		maxLookback:   maxLookback,
	}
}

// RequestBackfill validates the request, deduplicates per summary type, and
// immediately asks the vendor to start delivery for each newly created job.
// Validation failures happen before any write. A vendor rejection at intake
// marks the job error with the response body but never touches retry_count;
// retries belong to the processor alone.
func (s *IntakeService) RequestBackfill(ctx context.Context, req *IntakeRequest) ([]TypeResult, error) {
	now := time.Now().UTC()

	if err := s.validate(req, now); err != nil {
		return nil, err
	}

	// Fail fast when the user never connected; no job rows are created
	tok, err := s.tokens.EnsureValidToken(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"userId":      req.UserID,
		"periodStart": req.PeriodStart,
		"periodEnd":   req.PeriodEnd,
	})

	results := make([]TypeResult, 0, len(req.SummaryTypes))
	for _, summaryType := range req.SummaryTypes {
		existing, err := s.jobs.FindActive(ctx, req.UserID, req.PeriodStart, req.PeriodEnd, summaryType)
		if err != nil {
			return nil, errors.NewDatabaseError("backfill dedup lookup", err)
		}
		if existing != nil {
			logger.WithField("summaryType", summaryType).Info("Backfill already requested for period")
			results = append(results, TypeResult{
				SummaryType: summaryType,
				Result:      types.IntakeExisting,
				JobID:       existing.ID,
			})
			continue
		}

		job := &models.BackfillJob{
			ID:          uuid.New().String(),
			UserID:      req.UserID,
			SummaryType: summaryType,
			PeriodStart: req.PeriodStart,
			PeriodEnd:   req.PeriodEnd,
			Status:      types.JobStatusPending,
			RequestedAt: now,
			MaxRetries:  s.maxRetries,
		}
		if err := s.jobs.Create(ctx, job); err != nil {
			// A concurrent request for the same period can slip past the
			// FindActive check above; the unique index catches it, and the
			// loser reports the winner's job instead of failing
			if stderrors.Is(err, models.ErrDuplicateJob) {
				winner, findErr := s.jobs.FindActive(ctx, req.UserID, req.PeriodStart, req.PeriodEnd, summaryType)
				if findErr != nil || winner == nil {
					return nil, errors.NewDatabaseError("backfill dedup lookup", err)
				}
				logger.WithField("summaryType", summaryType).Info("Backfill already requested for period")
				results = append(results, TypeResult{
					SummaryType: summaryType,
					Result:      types.IntakeExisting,
					JobID:       winner.ID,
				})
				continue
			}
			return nil, errors.NewDatabaseError("backfill job create", err)
		}

		// Kick the vendor right away; the processor picks the job up later
		// regardless of the outcome here
		if err := s.vendor.RequestBackfill(ctx, tok.AccessToken, tok.TokenSecret, summaryType, req.PeriodStart, req.PeriodEnd); err != nil {
			logger.WithField("summaryType", summaryType).WithError(err).Warn("Vendor rejected backfill at intake")
			if markErr := s.jobs.MarkError(ctx, job.ID, errors.Categorize(err).Message); markErr != nil {
				return nil, errors.NewDatabaseError("backfill job error update", markErr)
			}
		} else {
			if markErr := s.jobs.MarkAccepted(ctx, job.ID); markErr != nil {
				return nil, errors.NewDatabaseError("backfill job accept update", markErr)
			}
		}

		results = append(results, TypeResult{
			SummaryType: summaryType,
			Result:      types.IntakeRequested,
			JobID:       job.ID,
		})
	}

	return results, nil
}

func (s *IntakeService) validate(req *IntakeRequest, now time.Time) error {
	if req.UserID == "" {
		return errors.NewValidationError("userId", "must not be empty")
	}
	if len(req.SummaryTypes) == 0 {
		return errors.NewValidationError("summaryTypes", "at least one summary type is required")
	}
	for _, summaryType := range req.SummaryTypes {
		if !summaryType.Valid() {
			return errors.NewValidationError("summaryTypes", "unknown summary type: "+string(summaryType))
		}
	}
	if !req.PeriodStart.Before(req.PeriodEnd) {
		return errors.NewValidationError("period", "periodStart must be before periodEnd")
	}
	if req.PeriodEnd.Sub(req.PeriodStart) > time.Duration(s.maxPeriodDays)*24*time.Hour {
		return errors.NewValidationError("period", fmt.Sprintf("period may not exceed %d days", s.maxPeriodDays))
	}
	if req.PeriodStart.Before(now.Add(-s.maxLookback)) {
		return errors.NewValidationError("periodStart", "period starts before the backfill eligibility window")
	}
	if req.PeriodStart.After(now) || req.PeriodEnd.After(now) {
		return errors.NewValidationError("period", "period may not extend into the future")
	}
	return nil
}
