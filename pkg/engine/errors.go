// Package engine implements the convergence core for scheduled serverless
// deployments. It drives the observe -> diff -> apply workflow that makes the
// live provider state match a declared DesiredDeployment.
package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of a provider failure for retry
// and recovery logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on retry.
	// Examples: network timeouts, temporary service unavailability.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassThrottled indicates rate limiting or quota exhaustion.
	// Retried with a longer backoff than transient failures.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassConflict indicates a resource state conflict.
	// Examples: concurrent modifications, a resource already existing.
	// Never retried; a concurrent run owns the resource right now.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassNotFound indicates the requested resource does not exist.
	// The observer maps this to "absent"; everywhere else it is terminal.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassPermissionDenied indicates the caller lacks the rights to
	// perform the operation. Retrying cannot change the outcome.
	ErrorClassPermissionDenied ErrorClass = "permission_denied"

	// ErrorClassUnknown indicates a failure that could not be classified.
	ErrorClassUnknown ErrorClass = "unknown"
)

// CloudError represents a classified provider failure with context.
type CloudError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional provider error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the resource name that caused the error, if applicable.
	Resource string `json:"resource,omitempty"`

	// Operation is the provider operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *CloudError) Error() string {
	if e.Resource != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (resource=%s, operation=%s): %s",
			e.Class, e.Message, e.Resource, e.Operation, e.unwrapMessage())
	}
	if e.Resource != "" {
		return fmt.Sprintf("[%s] %s (resource=%s): %s",
			e.Class, e.Message, e.Resource, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *CloudError) Unwrap() error {
	return e.Err
}

// unwrapMessage returns the error message from the underlying error chain.
func (e *CloudError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *CloudError) Is(target error) bool {
	t, ok := target.(*CloudError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *CloudError {
	return &CloudError{
		Class:   ErrorClassTransient,
		Message: message,
		Err:     err,
	}
}

// NewThrottledError creates a new throttled error.
func NewThrottledError(message string, err error) *CloudError {
	return &CloudError{
		Class:   ErrorClassThrottled,
		Message: message,
		Err:     err,
	}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *CloudError {
	return &CloudError{
		Class:   ErrorClassConflict,
		Message: message,
		Err:     err,
	}
}

// NewNotFoundError creates a new not-found error.
func NewNotFoundError(message string, err error) *CloudError {
	return &CloudError{
		Class:   ErrorClassNotFound,
		Message: message,
		Err:     err,
	}
}

// NewPermissionDeniedError creates a new permission-denied error.
func NewPermissionDeniedError(message string, err error) *CloudError {
	return &CloudError{
		Class:   ErrorClassPermissionDenied,
		Message: message,
		Err:     err,
	}
}

// NewUnknownError creates a new unclassified error.
func NewUnknownError(message string, err error) *CloudError {
	return &CloudError{
		Class:   ErrorClassUnknown,
		Message: message,
		Err:     err,
	}
}

// WithResource adds resource context to an error.
func (e *CloudError) WithResource(resource string) *CloudError {
	e.Resource = resource
	return e
}

// WithOperation adds operation context to an error.
func (e *CloudError) WithOperation(operation string) *CloudError {
	e.Operation = operation
	return e
}

// WithCode adds a provider error code to an error.
func (e *CloudError) WithCode(code string) *CloudError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *CloudError) WithDetail(key string, value interface{}) *CloudError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Classify extracts the error class from an error chain.
// Errors that are not CloudErrors classify as unknown.
func Classify(err error) ErrorClass {
	var e *CloudError
	if errors.As(err, &e) {
		return e.Class
	}
	return ErrorClassUnknown
}

// AsCloudError converts an error into a CloudError, wrapping unclassified
// errors as unknown so that every recorded failure carries a class.
func AsCloudError(err error) *CloudError {
	if err == nil {
		return nil
	}
	var e *CloudError
	if errors.As(err, &e) {
		return e
	}
	return NewUnknownError("unclassified failure", err)
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *CloudError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsThrottled returns true if the error is classified as throttled.
func IsThrottled(err error) bool {
	var e *CloudError
	if errors.As(err, &e) {
		return e.Class == ErrorClassThrottled
	}
	return false
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	var e *CloudError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConflict
	}
	return false
}

// IsNotFound returns true if the error is classified as not-found.
func IsNotFound(err error) bool {
	var e *CloudError
	if errors.As(err, &e) {
		return e.Class == ErrorClassNotFound
	}
	return false
}

// IsPermissionDenied returns true if the error is classified as permission-denied.
func IsPermissionDenied(err error) bool {
	var e *CloudError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermissionDenied
	}
	return false
}

// IsRetryable returns true if the error can be retried.
// Only transient and throttled failures are retryable: conflicts signal a
// concurrent writer and permission failures cannot succeed on retry.
func IsRetryable(err error) bool {
	return IsTransient(err) || IsThrottled(err)
}

// ObserveError indicates that a state lookup failed for a reason other than
// absence. It aborts the run before any action is planned.
type ObserveError struct {
	// Facet is the sub-resource whose lookup failed.
	Facet Facet

	// Err is the classified lookup failure.
	Err error
}

// Error implements the error interface.
func (e *ObserveError) Error() string {
	return fmt.Sprintf("observing %s failed: %v", e.Facet, e.Err)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ObserveError) Unwrap() error {
	return e.Err
}

// NewObserveError wraps a facet lookup failure.
func NewObserveError(facet Facet, err error) *ObserveError {
	return &ObserveError{Facet: facet, Err: err}
}

// PlanError indicates that the desired document is internally inconsistent,
// for example a malformed schedule expression. It aborts the run before any
// provider call is made.
type PlanError struct {
	// Field is the desired-state field that failed validation.
	Field string

	// Reason is the human-readable explanation.
	Reason string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *PlanError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid desired state (%s): %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid desired state: %s", e.Reason)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *PlanError) Unwrap() error {
	return e.Err
}

// NewPlanError creates a validation failure for a desired-state field.
func NewPlanError(field, reason string) *PlanError {
	return &PlanError{Field: field, Reason: reason}
}

// Common provider error codes.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeCancelled        = "CANCELLED"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeVerification     = "VERIFICATION_FAILED"
	ErrCodeDependencyFailed = "DEPENDENCY_FAILED"
)
