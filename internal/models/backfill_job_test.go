package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodDays(t *testing.T) {
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		end      time.Time
		expected int
	}{
		{name: "exact week", end: start.AddDate(0, 0, 7), expected: 7},
		{name: "single day", end: start.AddDate(0, 0, 1), expected: 1},
		{name: "partial day rounds up", end: start.Add(36 * time.Hour), expected: 2},
		{name: "sub-day rounds up", end: start.Add(time.Hour), expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &BackfillJob{PeriodStart: start, PeriodEnd: tt.end}
			assert.Equal(t, tt.expected, job.PeriodDays())
		})
	}
}

func TestRetriesExhausted(t *testing.T) {
	job := &BackfillJob{RetryCount: 2, MaxRetries: 3}
	assert.False(t, job.RetriesExhausted())

	job.RetryCount = 3
	assert.True(t, job.RetriesExhausted())
}

func TestRateLimited(t *testing.T) {
	now := time.Now()

	job := &BackfillJob{}
	assert.False(t, job.RateLimited(now))

	future := now.Add(time.Minute)
	job.RateLimitResetAt = &future
	assert.True(t, job.RateLimited(now))

	past := now.Add(-time.Minute)
	job.RateLimitResetAt = &past
	assert.False(t, job.RateLimited(now))
}
