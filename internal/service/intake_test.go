package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/biopeak-sync/internal/errors"
	"github.com/biopeak-sync/internal/models"
	"github.com/biopeak-sync/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJobStore struct {
	created    []*models.BackfillJob
	active     map[string]*models.BackfillJob // keyed by summary type
	lateActive map[string]*models.BackfillJob // visible only after the first lookup
	accepted   []string
	errored    map[string]string
	findCalls  int

	createErr error
	findErr   error
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		active:  make(map[string]*models.BackfillJob),
		errored: make(map[string]string),
	}
}

func (f *fakeJobStore) Create(ctx context.Context, job *models.BackfillJob) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, job)
	return nil
}

func (f *fakeJobStore) FindActive(ctx context.Context, userID string, periodStart, periodEnd time.Time, summaryType types.SummaryType) (*models.BackfillJob, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	f.findCalls++
	if job := f.active[string(summaryType)]; job != nil {
		return job, nil
	}
	if f.findCalls > 1 {
		return f.lateActive[string(summaryType)], nil
	}
	return nil, nil
}

func (f *fakeJobStore) MarkAccepted(ctx context.Context, jobID string) error {
	f.accepted = append(f.accepted, jobID)
	return nil
}

func (f *fakeJobStore) MarkError(ctx context.Context, jobID string, errorMessage string) error {
	f.errored[jobID] = errorMessage
	return nil
}

type fakeTokenSource struct {
	rec *models.TokenRecord
	err error
}

func (f *fakeTokenSource) EnsureValidToken(ctx context.Context, userID string) (*models.TokenRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rec, nil
}

type fakeVendor struct {
	errByType map[types.SummaryType]error
	calls     []types.SummaryType
}

func (f *fakeVendor) RequestBackfill(ctx context.Context, accessToken, tokenSecret string, summaryType types.SummaryType, start, end time.Time) error {
	f.calls = append(f.calls, summaryType)
	if f.errByType != nil {
		return f.errByType[summaryType]
	}
	return nil
}

func connectedTokens() *fakeTokenSource {
	return &fakeTokenSource{rec: &models.TokenRecord{
		UserID:      "user-1",
		AccessToken: "access",
		TokenSecret: "secret",
		ExpiresAt:   time.Now().Add(time.Hour),
	}}
}

func validRequest() *IntakeRequest {
	now := time.Now().UTC()
	return &IntakeRequest{
		UserID:       "user-1",
		PeriodStart:  now.AddDate(0, 0, -14),
		PeriodEnd:    now.AddDate(0, 0, -7),
		SummaryTypes: []types.SummaryType{types.SummaryDailies},
	}
}

func TestRequestBackfillCreatesPendingJob(t *testing.T) {
	jobs := newFakeJobStore()
	vendor := &fakeVendor{}
	svc := NewIntakeService(jobs, connectedTokens(), vendor, 0, 0, 0)

	results, err := svc.RequestBackfill(context.Background(), validRequest())
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, types.IntakeRequested, results[0].Result)
	assert.NotEmpty(t, results[0].JobID)

	require.Len(t, jobs.created, 1)
	job := jobs.created[0]
	assert.Equal(t, types.JobStatusPending, job.Status)
	assert.Equal(t, 0, job.RetryCount)
	assert.Equal(t, models.DefaultMaxRetries, job.MaxRetries)

	assert.Equal(t, []string{job.ID}, jobs.accepted)
	assert.Equal(t, []types.SummaryType{types.SummaryDailies}, vendor.calls)
}

func TestRequestBackfillDeduplicates(t *testing.T) {
	jobs := newFakeJobStore()
	jobs.active["dailies"] = &models.BackfillJob{ID: "existing-id"}
	vendor := &fakeVendor{}
	svc := NewIntakeService(jobs, connectedTokens(), vendor, 0, 0, 0)

	results, err := svc.RequestBackfill(context.Background(), validRequest())
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, types.IntakeExisting, results[0].Result)
	assert.Equal(t, "existing-id", results[0].JobID)
	assert.Empty(t, jobs.created)
	assert.Empty(t, vendor.calls)
}

func TestRequestBackfillDuplicateInsertReportsExisting(t *testing.T) {
	// A concurrent request can win the insert between the dedup lookup and
	// Create; the loser surfaces the winner's job rather than an error
	jobs := newFakeJobStore()
	jobs.createErr = models.ErrDuplicateJob
	jobs.lateActive = map[string]*models.BackfillJob{
		"dailies": {ID: "winner-id", Status: types.JobStatusPending},
	}
	vendor := &fakeVendor{}
	svc := NewIntakeService(jobs, connectedTokens(), vendor, 0, 0, 0)

	results, err := svc.RequestBackfill(context.Background(), validRequest())
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, types.IntakeExisting, results[0].Result)
	assert.Equal(t, "winner-id", results[0].JobID)
	assert.Empty(t, jobs.created)
	assert.Empty(t, vendor.calls)
	assert.Empty(t, jobs.accepted)
}

func TestRequestBackfillMixedTypes(t *testing.T) {
	jobs := newFakeJobStore()
	jobs.active["sleeps"] = &models.BackfillJob{ID: "existing-sleep"}
	vendor := &fakeVendor{}
	svc := NewIntakeService(jobs, connectedTokens(), vendor, 0, 0, 0)

	req := validRequest()
	req.SummaryTypes = []types.SummaryType{types.SummaryDailies, types.SummarySleeps}

	results, err := svc.RequestBackfill(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, types.IntakeRequested, results[0].Result)
	assert.Equal(t, types.IntakeExisting, results[1].Result)
	require.Len(t, jobs.created, 1)
	assert.Equal(t, types.SummaryDailies, jobs.created[0].SummaryType)
}

func TestRequestBackfillVendorRejectionKeepsBody(t *testing.T) {
	jobs := newFakeJobStore()
	vendor := &fakeVendor{errByType: map[types.SummaryType]error{
		types.SummaryDailies: errors.NewVendorError(429, `{"errorMessage":"too many backfill requests"}`),
	}}
	svc := NewIntakeService(jobs, connectedTokens(), vendor, 0, 0, 0)

	results, err := svc.RequestBackfill(context.Background(), validRequest())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.IntakeRequested, results[0].Result)

	require.Len(t, jobs.created, 1)
	jobID := jobs.created[0].ID
	assert.Equal(t, `{"errorMessage":"too many backfill requests"}`, jobs.errored[jobID])
	assert.Empty(t, jobs.accepted)
}

func TestRequestBackfillNotConnected(t *testing.T) {
	jobs := newFakeJobStore()
	tokens := &fakeTokenSource{err: errors.NewNotConnectedError("user-1")}
	svc := NewIntakeService(jobs, tokens, &fakeVendor{}, 0, 0, 0)

	_, err := svc.RequestBackfill(context.Background(), validRequest())
	require.Error(t, err)
	assert.Empty(t, jobs.created)
}

func TestRequestBackfillValidation(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name   string
		mutate func(*IntakeRequest)
	}{
		{name: "empty user", mutate: func(r *IntakeRequest) { r.UserID = "" }},
		{name: "no summary types", mutate: func(r *IntakeRequest) { r.SummaryTypes = nil }},
		{name: "unknown summary type", mutate: func(r *IntakeRequest) {
			r.SummaryTypes = []types.SummaryType{"epochs"}
		}},
		{name: "start equals end", mutate: func(r *IntakeRequest) { r.PeriodEnd = r.PeriodStart }},
		{name: "start after end", mutate: func(r *IntakeRequest) {
			r.PeriodStart, r.PeriodEnd = r.PeriodEnd, r.PeriodStart
		}},
		{name: "period too long", mutate: func(r *IntakeRequest) {
			r.PeriodStart = now.AddDate(0, 0, -120)
			r.PeriodEnd = now.AddDate(0, 0, -1)
		}},
		{name: "start too far back", mutate: func(r *IntakeRequest) {
			r.PeriodStart = now.AddDate(-1, 0, 0)
			r.PeriodEnd = now.AddDate(-1, 0, 7)
		}},
		{name: "period in future", mutate: func(r *IntakeRequest) {
			r.PeriodStart = now.AddDate(0, 0, -1)
			r.PeriodEnd = now.AddDate(0, 0, 6)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := newFakeJobStore()
			svc := NewIntakeService(jobs, connectedTokens(), &fakeVendor{}, 0, 0, 0)

			req := validRequest()
			tt.mutate(req)

			_, err := svc.RequestBackfill(context.Background(), req)
			require.Error(t, err)

			var catErr *errors.CategorizedError
			require.ErrorAs(t, err, &catErr)
			assert.Equal(t, errors.CategoryValidation, catErr.Category)

			// Validation happens before any write
			assert.Empty(t, jobs.created)
		})
	}
}

func TestRequestBackfillConfiguredLimitsInMessages(t *testing.T) {
	jobs := newFakeJobStore()
	svc := NewIntakeService(jobs, connectedTokens(), &fakeVendor{}, 3, 30, 30*24*time.Hour)

	now := time.Now().UTC()
	req := validRequest()
	req.PeriodStart = now.AddDate(0, 0, -45)
	req.PeriodEnd = now.AddDate(0, 0, -1)

	_, err := svc.RequestBackfill(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("%d days", 30))
}
