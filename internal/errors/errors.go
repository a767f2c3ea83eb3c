// Package errors provides categorized errors for the Garmin sync service.
package errors

import (
	"fmt"
	"net/http"

	"github.com/biopeak-sync/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryValidation represents request validation errors
	CategoryValidation ErrorCategory = "validation"
	// CategoryConnection represents missing or unusable vendor credentials
	CategoryConnection ErrorCategory = "connection"
	// CategoryVendor represents errors returned by the Garmin API
	CategoryVendor ErrorCategory = "vendor"
	// CategoryRateLimit represents internal or vendor rate limiting
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategoryDatabase represents storage errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryNotFound represents missing resources
	CategoryNotFound ErrorCategory = "not_found"
	// CategorySystem represents unexpected internal errors
	CategorySystem ErrorCategory = "system"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError for API responses
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewValidationError creates a request validation error
func NewValidationError(field, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		Details: map[string]interface{}{
			"field":  field,
			"reason": reason,
		},
	}
}

// NewNotConnectedError indicates the user has no stored Garmin credentials
func NewNotConnectedError(userID string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConnection,
		StatusCode: http.StatusUnauthorized,
		Code:       "NOT_CONNECTED",
		Message:    "user is not connected to Garmin",
		Details: map[string]interface{}{
			"userId": userID,
		},
	}
}

// NewRefreshFailedError indicates the stored token is expired and could not be
// refreshed. The user has to reconnect; waiting will not fix this.
func NewRefreshFailedError(userID string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConnection,
		StatusCode: http.StatusUnauthorized,
		Code:       "TOKEN_REFRESH_FAILED",
		Message:    "Garmin token refresh failed, reconnect required",
		Cause:      cause,
		Details: map[string]interface{}{
			"userId": userID,
		},
	}
}

// NewVendorError wraps a non-202 response from the Garmin backfill API.
// The response body is carried verbatim as the message.
func NewVendorError(statusCode int, body string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryVendor,
		StatusCode: http.StatusBadGateway,
		Code:       "VENDOR_REJECTED",
		Message:    body,
		Details: map[string]interface{}{
			"vendorStatus": statusCode,
		},
	}
}

// NewRateLimitError indicates the per-user day-unit budget is spent
func NewRateLimitError(userID string, resetAfterSeconds int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "backfill day-unit budget exceeded",
		Details: map[string]interface{}{
			"userId":     userID,
			"retryAfter": resetAfterSeconds,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}
	if catErr, ok := err.(*CategorizedError); ok {
		return catErr
	}
	return NewInternalError("unexpected error", err)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether a processor failure should go through the
// retry/backoff path. Connection errors need user action, so they never retry.
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	switch catErr.Category {
	case CategoryVendor, CategoryDatabase, CategorySystem:
		return true
	default:
		return false
	}
}

// IsConnectionError reports whether the error means the user's Garmin link is
// missing or unusable
func IsConnectionError(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Category == CategoryConnection
}
