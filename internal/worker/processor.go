// Package worker implements the batch backfill job processor. It is designed
// for short-lived invocations driven by an external trigger, not as a
// long-running daemon.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/biopeak-sync/internal/errors"
	"github.com/biopeak-sync/internal/logging"
	"github.com/biopeak-sync/internal/models"
	"github.com/biopeak-sync/internal/service"
	"github.com/biopeak-sync/internal/types"
	"golang.org/x/time/rate"
)

// Processing defaults
const (
	DefaultBatchSize = 10
	DefaultJobDelay  = time.Second
	DefaultUserDelay = 2 * time.Second

	// tokenFailureMessage is the fixed error recorded when a user's
	// credentials are missing or unrefreshable; waiting will not fix it.
	tokenFailureMessage = "User tokens not found or invalid"
)

// JobStore is the persistence surface the processor needs
type JobStore interface {
	ListEligible(ctx context.Context, userID string, now time.Time, limit int) ([]*models.BackfillJob, error)
	HasActiveRateLimit(ctx context.Context, userID string, now time.Time) (bool, error)
	Claim(ctx context.Context, jobID string, fromStatus types.JobStatus, retryCount int) (bool, error)
	MarkAccepted(ctx context.Context, jobID string) error
	MarkFailure(ctx context.Context, jobID string, retryCount int, nextRetryAt *time.Time, errorMessage string) error
	MarkError(ctx context.Context, jobID string, errorMessage string) error
	SetRateLimitReset(ctx context.Context, jobID string, resetAt time.Time) error
}

// RateLedger charges day-units against a user's budget window
type RateLedger interface {
	Consume(ctx context.Context, userID string, units int) (allowed bool, resetAt time.Time, err error)
}

// Result is the outcome of one processor pass
type Result struct {
	TotalFound     int        `json:"totalFound"`
	Processed      int        `json:"processed"`
	Errors         int        `json:"errors"`
	RateLimited    bool       `json:"rateLimited"`
	RateLimitReset *time.Time `json:"rateLimitReset,omitempty"`
}

// Config holds processor tuning knobs
type Config struct {
	BatchSize int
	JobDelay  time.Duration
	UserDelay time.Duration
}

// Processor scans eligible backfill jobs and advances them against the
// vendor API with per-user rate gating and retry bookkeeping
type Processor struct {
	jobs      JobStore
	tokens    service.TokenSource
	vendor    service.Vendor
	ledger    RateLedger
	batchSize int
	jobDelay  time.Duration
	userDelay time.Duration
}

// NewProcessor creates a processor. Zero config values select the defaults.
func NewProcessor(jobs JobStore, tokens service.TokenSource, vendor service.Vendor, ledger RateLedger, cfg Config) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.JobDelay <= 0 {
		cfg.JobDelay = DefaultJobDelay
	}
	if cfg.UserDelay <= 0 {
		cfg.UserDelay = DefaultUserDelay
	}
	return &Processor{
		jobs:      jobs,
		tokens:    tokens,
		vendor:    vendor,
		ledger:    ledger,
		batchSize: cfg.BatchSize,
		jobDelay:  cfg.JobDelay,
		userDelay: cfg.UserDelay,
	}
}

// ProcessPending runs one processor pass. userID filters to a single user
// when non-empty; batchSize <= 0 selects the configured default.
// Per-job failures are converted into retry bookkeeping and never abort the
// pass; the worst a broken job can do is bump the error count.
func (p *Processor) ProcessPending(ctx context.Context, userID string, batchSize int) (*Result, error) {
	if batchSize <= 0 {
		batchSize = p.batchSize
	}

	now := time.Now().UTC()
	jobs, err := p.jobs.ListEligible(ctx, userID, now, batchSize)
	if err != nil {
		return nil, errors.NewDatabaseError("eligible job scan", err)
	}

	result := &Result{TotalFound: len(jobs)}
	if len(jobs) == 0 {
		return result, nil
	}

	logger := logging.FromContext(ctx)
	logger.WithFields(map[string]interface{}{
		"totalFound": len(jobs),
		"userFilter": userID,
	}).Info("Processing backfill jobs")

	// Oldest-first fairness is preserved across the grouping: users are
	// visited in order of their oldest eligible job
	groups, order := groupByUser(jobs)

	for i, uid := range order {
		if i > 0 {
			if err := sleepCtx(ctx, p.userDelay); err != nil {
				return result, nil
			}
		}
		p.processUserGroup(ctx, uid, groups[uid], result)
	}

	return result, nil
}

// processUserGroup advances one user's jobs sequentially with pacing
func (p *Processor) processUserGroup(ctx context.Context, userID string, jobs []*models.BackfillJob, result *Result) {
	logger := logging.FromContext(ctx).WithField("userId", userID)
	now := time.Now().UTC()

	// A user still inside a rate-limit cool-down is skipped entirely;
	// partial processing would just re-trip the limit
	limited, err := p.jobs.HasActiveRateLimit(ctx, userID, now)
	if err != nil {
		logger.WithError(err).Warn("Failed to check rate limit state, skipping user")
		return
	}
	if limited {
		logger.Info("User inside rate-limit cool-down, skipping group")
		result.RateLimited = true
		return
	}

	tok, err := p.tokens.EnsureValidToken(ctx, userID)
	if err != nil {
		// Only a disconnected or unrefreshable account gets the fixed error;
		// that state will not fix itself by waiting, so the whole group is
		// marked errored without burning retries. Anything else (a failed
		// token lookup, say) is transient: leave the jobs eligible for the
		// next pass, like the rate-limit check failure above.
		if !errors.IsConnectionError(err) {
			logger.WithError(err).Warn("Failed to load user tokens, skipping user")
			return
		}
		logger.WithError(err).Warn("Token unusable, failing user's claimed jobs")
		for _, job := range jobs {
			if markErr := p.jobs.MarkError(ctx, job.ID, tokenFailureMessage); markErr != nil {
				logger.WithField("jobId", job.ID).WithError(markErr).Warn("Failed to record token failure")
			}
			result.Errors++
		}
		return
	}

	// 1 request per second toward the vendor for this user
	pacer := rate.NewLimiter(rate.Every(p.jobDelay), 1)

	for _, job := range jobs {
		if err := pacer.Wait(ctx); err != nil {
			return
		}

		units := job.PeriodDays()
		allowed, resetAt, err := p.ledger.Consume(ctx, userID, units)
		if err != nil {
			logger.WithField("jobId", job.ID).WithError(err).Warn("Rate ledger unavailable, deferring job")
			return
		}
		if !allowed {
			// Budget spent: defer this and every remaining job of the user
			logger.WithFields(map[string]interface{}{
				"jobId":   job.ID,
				"units":   units,
				"resetAt": resetAt,
			}).Info("Day-unit budget exceeded, deferring user")
			if err := p.jobs.SetRateLimitReset(ctx, job.ID, resetAt); err != nil {
				logger.WithField("jobId", job.ID).WithError(err).Warn("Failed to record rate limit reset")
			}
			result.RateLimited = true
			result.RateLimitReset = &resetAt
			return
		}

		p.processJob(ctx, logger, job, tok.AccessToken, tok.TokenSecret, result)
	}
}

// processJob claims and advances a single job. Panics are converted into the
// same retry bookkeeping as vendor failures.
func (p *Processor) processJob(ctx context.Context, logger *logging.Logger, job *models.BackfillJob, accessToken, tokenSecret string, result *Result) {
	claimed, err := p.jobs.Claim(ctx, job.ID, job.Status, job.RetryCount)
	if err != nil {
		logger.WithField("jobId", job.ID).WithError(err).Warn("Failed to claim job")
		return
	}
	if !claimed {
		// A concurrent pass got here first
		logger.WithField("jobId", job.ID).Info("Job already claimed, skipping")
		return
	}

	err = p.callVendor(ctx, job, accessToken, tokenSecret)
	if err != nil {
		p.recordFailure(ctx, logger, job, err)
		result.Errors++
		return
	}

	if err := p.jobs.MarkAccepted(ctx, job.ID); err != nil {
		logger.WithField("jobId", job.ID).WithError(err).Warn("Failed to record vendor acceptance")
	}
	result.Processed++
}

// callVendor isolates the vendor call so a panic inside it fails one job,
// never the batch
func (p *Processor) callVendor(ctx context.Context, job *models.BackfillJob, accessToken, tokenSecret string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewInternalError(fmt.Sprintf("panic during job processing: %v", r), nil)
		}
	}()
	return p.vendor.RequestBackfill(ctx, accessToken, tokenSecret, job.SummaryType, job.PeriodStart, job.PeriodEnd)
}

func (p *Processor) recordFailure(ctx context.Context, logger *logging.Logger, job *models.BackfillJob, cause error) {
	retryCount := job.RetryCount + 1
	message := errors.Categorize(cause).Message

	// No nextRetryAt once retries are exhausted: the error state is terminal
	var nextRetryAt *time.Time
	if retryCount < job.MaxRetries {
		at := service.NextRetryAt(time.Now().UTC(), retryCount)
		nextRetryAt = &at
	}

	logger.WithFields(map[string]interface{}{
		"jobId":      job.ID,
		"retryCount": retryCount,
		"maxRetries": job.MaxRetries,
		"error":      message,
	}).Warn("Backfill job failed")

	if err := p.jobs.MarkFailure(ctx, job.ID, retryCount, nextRetryAt, message); err != nil {
		logger.WithField("jobId", job.ID).WithError(err).Warn("Failed to record job failure")
	}
}

// groupByUser partitions jobs per user, keeping users ordered by their first
// (oldest) job in the batch
func groupByUser(jobs []*models.BackfillJob) (map[string][]*models.BackfillJob, []string) {
	groups := make(map[string][]*models.BackfillJob)
	var order []string
	for _, job := range jobs {
		if _, seen := groups[job.UserID]; !seen {
			order = append(order, job.UserID)
		}
		groups[job.UserID] = append(groups[job.UserID], job)
	}
	return groups, order
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
