package garmin

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/biopeak-sync/internal/logging"
	"github.com/biopeak-sync/internal/models"
	"github.com/biopeak-sync/internal/types"
)

// Vendor payloads are loosely typed and the field names differ per summary
// type. Each type gets its own decoding variant here; unknown collections are
// logged and skipped rather than guessed at.

// dailySummary mirrors the vendor's daily activity shape
type dailySummary struct {
	SummaryID             string  `json:"summaryId"`
	StartTimeInSeconds    int64   `json:"startTimeInSeconds"`
	DurationInSeconds     int     `json:"durationInSeconds"`
	Steps                 int     `json:"steps"`
	DistanceInMeters      float64 `json:"distanceInMeters"`
	ActiveKilocalories    float64 `json:"activeKilocalories"`
	AverageHeartRateInBPM int     `json:"averageHeartRateInBeatsPerMinute"`
}

// sleepSummary mirrors the vendor's sleep shape
type sleepSummary struct {
	SummaryID          string `json:"summaryId"`
	StartTimeInSeconds int64  `json:"startTimeInSeconds"`
	DurationInSeconds  int    `json:"durationInSeconds"`
	TotalSleepSeconds  int    `json:"totalSleepSeconds"`
}

// bodyCompSummary mirrors the vendor's body composition shape
type bodyCompSummary struct {
	SummaryID                string  `json:"summaryId"`
	MeasurementTimeInSeconds int64   `json:"measurementTimeInSeconds"`
	WeightInGrams            float64 `json:"weightInGrams"`
}

// userMetricsSummary mirrors the vendor's user metrics shape
type userMetricsSummary struct {
	SummaryID    string  `json:"summaryId"`
	CalendarDate string  `json:"calendarDate"`
	Vo2Max       float64 `json:"vo2Max"`
}

// activitySummary mirrors the vendor's recorded activity shape
type activitySummary struct {
	SummaryID             string  `json:"summaryId"`
	ActivityName          string  `json:"activityName"`
	ActivityType          string  `json:"activityType"`
	StartTimeInSeconds    int64   `json:"startTimeInSeconds"`
	DurationInSeconds     int     `json:"durationInSeconds"`
	DistanceInMeters      float64 `json:"distanceInMeters"`
	ActiveKilocalories    float64 `json:"activeKilocalories"`
	AverageHeartRateInBPM int     `json:"averageHeartRateInBeatsPerMinute"`
}

// stressSummary mirrors the vendor's stress details shape
type stressSummary struct {
	SummaryID          string `json:"summaryId"`
	StartTimeInSeconds int64  `json:"startTimeInSeconds"`
	DurationInSeconds  int    `json:"durationInSeconds"`
	AverageStressLevel int    `json:"averageStressLevel"`
}

// MapPayload normalizes a vendor push payload into activity summaries.
// The payload is an object keyed by summary collection name, e.g.
// {"dailies": [...], "sleeps": [...]}.
func MapPayload(userID string, raw []byte, now time.Time) ([]models.ActivitySummary, error) {
	var collections map[string]json.RawMessage
	if err := json.Unmarshal(raw, &collections); err != nil {
		return nil, fmt.Errorf("malformed vendor payload: %w", err)
	}

	var out []models.ActivitySummary
	for key, value := range collections {
		summaryType := types.SummaryType(key)
		if !summaryType.Valid() {
			logging.GetGlobalLogger().WithField("collection", key).Warn("Skipping unknown summary collection in vendor payload")
			continue
		}
		mapped, err := MapSummaries(userID, summaryType, value, now)
		if err != nil {
			return nil, err
		}
		out = append(out, mapped...)
	}
	return out, nil
}

// MapSummaries normalizes one summary collection of a known type
func MapSummaries(userID string, summaryType types.SummaryType, raw json.RawMessage, now time.Time) ([]models.ActivitySummary, error) {
	switch summaryType {
	case types.SummaryDailies:
		return mapDailies(userID, raw, now)
	case types.SummarySleeps:
		return mapSleeps(userID, raw, now)
	case types.SummaryBodyComps:
		return mapBodyComps(userID, raw, now)
	case types.SummaryUserMetrics:
		return mapUserMetrics(userID, raw, now)
	case types.SummaryActivities:
		return mapActivities(userID, raw, now)
	case types.SummaryStressDetails:
		return mapStressDetails(userID, raw, now)
	default:
		return nil, fmt.Errorf("unsupported summary type: %s", summaryType)
	}
}

func mapDailies(userID string, raw json.RawMessage, now time.Time) ([]models.ActivitySummary, error) {
	var items []dailySummary
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("malformed dailies payload: %w", err)
	}
	out := make([]models.ActivitySummary, 0, len(items))
	for _, item := range items {
		out = append(out, models.ActivitySummary{
			UserID:          userID,
			SummaryType:     types.SummaryDailies,
			SummaryID:       item.SummaryID,
			StartTime:       time.Unix(item.StartTimeInSeconds, 0).UTC(),
			DurationSeconds: item.DurationInSeconds,
			Steps:           item.Steps,
			Calories:        item.ActiveKilocalories,
			DistanceMeters:  item.DistanceInMeters,
			AvgHeartRate:    item.AverageHeartRateInBPM,
			ReceivedAt:      now,
		})
	}
	return out, nil
}

func mapSleeps(userID string, raw json.RawMessage, now time.Time) ([]models.ActivitySummary, error) {
	var items []sleepSummary
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("malformed sleeps payload: %w", err)
	}
	out := make([]models.ActivitySummary, 0, len(items))
	for _, item := range items {
		sleepSeconds := item.TotalSleepSeconds
		if sleepSeconds == 0 {
			sleepSeconds = item.DurationInSeconds
		}
		out = append(out, models.ActivitySummary{
			UserID:          userID,
			SummaryType:     types.SummarySleeps,
			SummaryID:       item.SummaryID,
			StartTime:       time.Unix(item.StartTimeInSeconds, 0).UTC(),
			DurationSeconds: item.DurationInSeconds,
			SleepSeconds:    sleepSeconds,
			ReceivedAt:      now,
		})
	}
	return out, nil
}

func mapBodyComps(userID string, raw json.RawMessage, now time.Time) ([]models.ActivitySummary, error) {
	var items []bodyCompSummary
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("malformed bodyComps payload: %w", err)
	}
	out := make([]models.ActivitySummary, 0, len(items))
	for _, item := range items {
		out = append(out, models.ActivitySummary{
			UserID:      userID,
			SummaryType: types.SummaryBodyComps,
			SummaryID:   item.SummaryID,
			StartTime:   time.Unix(item.MeasurementTimeInSeconds, 0).UTC(),
			WeightGrams: item.WeightInGrams,
			ReceivedAt:  now,
		})
	}
	return out, nil
}

func mapUserMetrics(userID string, raw json.RawMessage, now time.Time) ([]models.ActivitySummary, error) {
	var items []userMetricsSummary
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("malformed userMetrics payload: %w", err)
	}
	out := make([]models.ActivitySummary, 0, len(items))
	for _, item := range items {
		// userMetrics carry a calendar date instead of a timestamp
		startTime := now
		if item.CalendarDate != "" {
			if parsed, err := time.Parse("2006-01-02", item.CalendarDate); err == nil {
				startTime = parsed.UTC()
			}
		}
		out = append(out, models.ActivitySummary{
			UserID:      userID,
			SummaryType: types.SummaryUserMetrics,
			SummaryID:   item.SummaryID,
			StartTime:   startTime,
			Vo2Max:      item.Vo2Max,
			ReceivedAt:  now,
		})
	}
	return out, nil
}

func mapActivities(userID string, raw json.RawMessage, now time.Time) ([]models.ActivitySummary, error) {
	var items []activitySummary
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("malformed activities payload: %w", err)
	}
	out := make([]models.ActivitySummary, 0, len(items))
	for _, item := range items {
		name := item.ActivityName
		if name == "" {
			name = item.ActivityType
		}
		out = append(out, models.ActivitySummary{
			UserID:          userID,
			SummaryType:     types.SummaryActivities,
			SummaryID:       item.SummaryID,
			StartTime:       time.Unix(item.StartTimeInSeconds, 0).UTC(),
			DurationSeconds: item.DurationInSeconds,
			Calories:        item.ActiveKilocalories,
			DistanceMeters:  item.DistanceInMeters,
			AvgHeartRate:    item.AverageHeartRateInBPM,
			ActivityName:    name,
			ReceivedAt:      now,
		})
	}
	return out, nil
}

func mapStressDetails(userID string, raw json.RawMessage, now time.Time) ([]models.ActivitySummary, error) {
	var items []stressSummary
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("malformed stressDetails payload: %w", err)
	}
	out := make([]models.ActivitySummary, 0, len(items))
	for _, item := range items {
		out = append(out, models.ActivitySummary{
			UserID:          userID,
			SummaryType:     types.SummaryStressDetails,
			SummaryID:       item.SummaryID,
			StartTime:       time.Unix(item.StartTimeInSeconds, 0).UTC(),
			DurationSeconds: item.DurationInSeconds,
			AvgStressLevel:  item.AverageStressLevel,
			ReceivedAt:      now,
		})
	}
	return out, nil
}
