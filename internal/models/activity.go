package models

import (
	"time"

	"github.com/biopeak-sync/internal/types"
)

// ActivitySummary is the normalized form of a vendor health/activity summary,
// produced by the garmin payload mapper and stored for dashboard queries.
// Vendor payloads are heterogeneous across summary types; only the fields that
// apply to a given type are populated.
type ActivitySummary struct {
	UserID          string            `json:"userId"`
	SummaryType     types.SummaryType `json:"summaryType"`
	SummaryID       string            `json:"summaryId"`
	StartTime       time.Time         `json:"startTime"`
	DurationSeconds int               `json:"durationSeconds"`
	Steps           int               `json:"steps,omitempty"`
	Calories        float64           `json:"calories,omitempty"`
	DistanceMeters  float64           `json:"distanceMeters,omitempty"`
	SleepSeconds    int               `json:"sleepSeconds,omitempty"`
	AvgHeartRate    int               `json:"avgHeartRate,omitempty"`
	AvgStressLevel  int               `json:"avgStressLevel,omitempty"`
	WeightGrams     float64           `json:"weightGrams,omitempty"`
	Vo2Max          float64           `json:"vo2Max,omitempty"`
	ActivityName    string            `json:"activityName,omitempty"`
	ReceivedAt      time.Time         `json:"receivedAt"`
}
