// Package types provides common type definitions for the BioPeak Garmin sync service.
package types

// SummaryType represents a Garmin wellness data category that can be backfilled
type SummaryType string

const (
	// SummaryDailies represents daily activity summaries (steps, calories, heart rate)
	SummaryDailies SummaryType = "dailies"
	// SummarySleeps represents sleep summaries
	SummarySleeps SummaryType = "sleeps"
	// SummaryBodyComps represents body composition summaries
	SummaryBodyComps SummaryType = "bodyComps"
	// SummaryUserMetrics represents user metrics summaries (VO2 max, fitness age)
	SummaryUserMetrics SummaryType = "userMetrics"
	// SummaryActivities represents recorded activity summaries
	SummaryActivities SummaryType = "activities"
	// SummaryStressDetails represents stress detail summaries
	SummaryStressDetails SummaryType = "stressDetails"
)

// AllSummaryTypes lists every backfillable summary type
var AllSummaryTypes = []SummaryType{
	SummaryDailies,
	SummarySleeps,
	SummaryBodyComps,
	SummaryUserMetrics,
	SummaryActivities,
	SummaryStressDetails,
}

// Valid reports whether the summary type is one the vendor supports
func (s SummaryType) Valid() bool {
	for _, known := range AllSummaryTypes {
		if s == known {
			return true
		}
	}
	return false
}

// JobStatus represents the status of a backfill job
type JobStatus string

const (
	// JobStatusPending represents a job waiting to be processed
	JobStatusPending JobStatus = "pending"
	// JobStatusInProgress represents a job accepted by the vendor and awaiting delivery
	JobStatusInProgress JobStatus = "in_progress"
	// JobStatusCompleted represents a finished job
	JobStatusCompleted JobStatus = "completed"
	// JobStatusError represents a failed job, possibly eligible for retry
	JobStatusError JobStatus = "error"
)

// IntakeResult represents the outcome of a single summary type in a backfill request
type IntakeResult string

const (
	// IntakeRequested means a new job row was created
	IntakeRequested IntakeResult = "requested"
	// IntakeExisting means an existing non-error job already covers the tuple
	IntakeExisting IntakeResult = "existing"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
