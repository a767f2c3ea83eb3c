package service

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestBackoffFirstAttemptRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := Backoff(1)
		assert.GreaterOrEqual(t, d, 30*time.Second)
		assert.Less(t, d, 30*time.Second+30*time.Second/4)
	}
}

func TestBackoffCapped(t *testing.T) {
	for _, k := range []int{7, 8, 20, 100} {
		assert.Equal(t, time.Hour, Backoff(k), "attempt %d", k)
	}
}

func TestBackoffNormalizesLowCounts(t *testing.T) {
	d := Backoff(0)
	assert.GreaterOrEqual(t, d, 30*time.Second)
	d = Backoff(-3)
	assert.GreaterOrEqual(t, d, 30*time.Second)
}

func TestBackoffProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Property: delays grow strictly until both attempts hit the cap
	properties.Property("delay strictly increases below the cap", prop.ForAll(
		func(k int) bool {
			a, b := Backoff(k), Backoff(k+1)
			if b == backoffCap {
				return a <= b
			}
			return a < b
		},
		gen.IntRange(1, 12),
	))

	// Property: delay never exceeds the cap and never undercuts the base step
	properties.Property("delay stays within [step, cap]", prop.ForAll(
		func(k int) bool {
			d := Backoff(k)
			return d >= backoffBase && d <= backoffCap
		},
		gen.IntRange(1, 64),
	))

	properties.TestingRun(t)
}

func TestNextRetryAt(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	at := NextRetryAt(now, 1)
	assert.True(t, at.After(now))
	assert.True(t, at.Before(now.Add(time.Minute)))
}
