package service

import (
	"math"
	"math/rand"
	"time"
)

// Backoff schedule: 30s base doubling per attempt, capped at an hour.
// Jitter is bounded to a quarter of the current step so consecutive attempts
// stay strictly ordered below the cap.
const (
	backoffBase = 30 * time.Second
	backoffCap  = time.Hour
)

// Backoff returns the retry delay after the given number of failed attempts.
// retryCount is the attempt that just failed, starting at 1.
func Backoff(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}

	delay := float64(backoffBase) * math.Pow(2, float64(retryCount-1))
	if delay > float64(backoffCap) {
		return backoffCap
	}

	// Jitter in [0, delay/4): strictly less than the gap to the next step,
	// so Backoff(k+1) > Backoff(k) always holds below the cap
	jitterCeil := delay / 4
	jitter := rand.Float64() * jitterCeil

	total := time.Duration(delay + jitter)
	if total > backoffCap {
		return backoffCap
	}
	return total
}

// NextRetryAt computes the wall-clock retry eligibility instant
func NextRetryAt(now time.Time, retryCount int) time.Time {
	return now.Add(Backoff(retryCount))
}
