package service

import (
	"context"
	"testing"
	"time"

	"github.com/biopeak-sync/internal/models"
	"github.com/biopeak-sync/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil)
	assert.Equal(t, 0, summary.Total)
	assert.Empty(t, summary.BySummaryType)
}

func TestSummarizeCounts(t *testing.T) {
	jobs := []*models.BackfillJob{
		{SummaryType: types.SummaryDailies, Status: types.JobStatusCompleted, ActivitiesProcessed: 7},
		{SummaryType: types.SummaryDailies, Status: types.JobStatusPending},
		{SummaryType: types.SummaryDailies, Status: types.JobStatusError},
		{SummaryType: types.SummarySleeps, Status: types.JobStatusInProgress},
		{SummaryType: types.SummarySleeps, Status: types.JobStatusCompleted, ActivitiesProcessed: 3},
	}

	summary := Summarize(jobs)

	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 1, summary.InProgress)
	assert.Equal(t, 1, summary.Pending)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 10, summary.TotalActivitiesProcessed)

	dailies := summary.BySummaryType[types.SummaryDailies]
	assert.Equal(t, TypeCounts{Total: 3, Completed: 1, Pending: 1, Errors: 1}, dailies)

	sleeps := summary.BySummaryType[types.SummarySleeps]
	assert.Equal(t, TypeCounts{Total: 2, Completed: 1, InProgress: 1}, sleeps)
}

type fakeReconcileStore struct {
	stale     []*models.BackfillJob
	completed map[string]int

	listErr error
	markErr error
}

func (f *fakeReconcileStore) ListStaleInProgress(ctx context.Context, cutoff time.Time) ([]*models.BackfillJob, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.stale, nil
}

func (f *fakeReconcileStore) MarkCompleted(ctx context.Context, jobID string, completedAt time.Time, activitiesProcessed int) error {
	if f.markErr != nil {
		return f.markErr
	}
	if f.completed == nil {
		f.completed = make(map[string]int)
	}
	f.completed[jobID] = activitiesProcessed
	return nil
}

type fakeActivityCounter struct {
	counts map[string]int
	err    error
}

func (f *fakeActivityCounter) CountForPeriod(ctx context.Context, userID string, summaryType types.SummaryType, start, end time.Time) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[userID+"/"+string(summaryType)], nil
}

func TestReconcilerMarksStaleJobsCompleted(t *testing.T) {
	store := &fakeReconcileStore{stale: []*models.BackfillJob{
		{ID: "job-1", UserID: "u1", SummaryType: types.SummaryDailies},
		{ID: "job-2", UserID: "u1", SummaryType: types.SummarySleeps},
	}}
	counter := &fakeActivityCounter{counts: map[string]int{
		"u1/dailies": 14,
		"u1/sleeps":  7,
	}}

	reconciler := NewReconciler(store, counter, 0)

	reconciled, err := reconciler.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, reconciled)
	assert.Equal(t, 14, store.completed["job-1"])
	assert.Equal(t, 7, store.completed["job-2"])
}

func TestReconcilerNilCounterKeepsExistingCount(t *testing.T) {
	store := &fakeReconcileStore{stale: []*models.BackfillJob{
		{ID: "job-1", ActivitiesProcessed: 42},
	}}

	reconciler := NewReconciler(store, nil, time.Hour)

	reconciled, err := reconciler.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, reconciled)
	assert.Equal(t, 42, store.completed["job-1"])
}

func TestReconcilerCountFailureKeepsExistingCount(t *testing.T) {
	store := &fakeReconcileStore{stale: []*models.BackfillJob{
		{ID: "job-1", ActivitiesProcessed: 5},
	}}
	counter := &fakeActivityCounter{err: assert.AnError}

	reconciler := NewReconciler(store, counter, time.Hour)

	reconciled, err := reconciler.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, reconciled)
	assert.Equal(t, 5, store.completed["job-1"])
}

func TestReconcilerListFailure(t *testing.T) {
	store := &fakeReconcileStore{listErr: assert.AnError}
	reconciler := NewReconciler(store, nil, 0)

	_, err := reconciler.Run(context.Background())
	assert.Error(t, err)
}

func TestReconcilerMarkFailureContinues(t *testing.T) {
	store := &fakeReconcileStore{
		stale:   []*models.BackfillJob{{ID: "job-1"}, {ID: "job-2"}},
		markErr: assert.AnError,
	}
	reconciler := NewReconciler(store, nil, 0)

	reconciled, err := reconciler.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, reconciled)
}
