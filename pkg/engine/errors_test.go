package engine

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCloudError_Constructors(t *testing.T) {
	cause := errors.New("socket timeout")

	tests := []struct {
		name  string
		err   *CloudError
		class ErrorClass
	}{
		{"transient", NewTransientError("request timed out", cause), ErrorClassTransient},
		{"throttled", NewThrottledError("rate exceeded", cause), ErrorClassThrottled},
		{"conflict", NewConflictError("resource exists", cause), ErrorClassConflict},
		{"not found", NewNotFoundError("no such function", cause), ErrorClassNotFound},
		{"permission denied", NewPermissionDeniedError("access denied", cause), ErrorClassPermissionDenied},
		{"unknown", NewUnknownError("something broke", cause), ErrorClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Class != tt.class {
				t.Errorf("Expected class %s, got %s", tt.class, tt.err.Class)
			}
			if !errors.Is(tt.err, tt.err) {
				t.Error("Expected error to match itself with errors.Is")
			}
			if tt.err.Unwrap() != cause {
				t.Errorf("Expected Unwrap to return the cause, got %v", tt.err.Unwrap())
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"transient", NewTransientError("timeout", nil), true},
		{"throttled", NewThrottledError("slow down", nil), true},
		{"conflict", NewConflictError("already exists", nil), false},
		{"not found", NewNotFoundError("absent", nil), false},
		{"permission denied", NewPermissionDeniedError("denied", nil), false},
		{"unknown", NewUnknownError("unclear", nil), false},
		{"plain error", errors.New("plain"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

func TestCloudError_ClassPredicates(t *testing.T) {
	if !IsTransient(NewTransientError("t", nil)) {
		t.Error("Expected IsTransient to be true for a transient error")
	}
	if !IsThrottled(NewThrottledError("t", nil)) {
		t.Error("Expected IsThrottled to be true for a throttled error")
	}
	if !IsConflict(NewConflictError("c", nil)) {
		t.Error("Expected IsConflict to be true for a conflict error")
	}
	if !IsNotFound(NewNotFoundError("n", nil)) {
		t.Error("Expected IsNotFound to be true for a not-found error")
	}
	if !IsPermissionDenied(NewPermissionDeniedError("p", nil)) {
		t.Error("Expected IsPermissionDenied to be true for a permission error")
	}
	if IsTransient(NewConflictError("c", nil)) {
		t.Error("Expected IsTransient to be false for a conflict error")
	}
}

func TestCloudError_PredicatesTraverseWrapping(t *testing.T) {
	inner := NewThrottledError("too many requests", nil).WithCode(ErrCodeRateLimited)
	wrapped := fmt.Errorf("applying update_function_code: %w", inner)

	if !IsThrottled(wrapped) {
		t.Error("Expected IsThrottled to see through fmt.Errorf wrapping")
	}
	if !IsRetryable(wrapped) {
		t.Error("Expected IsRetryable to see through fmt.Errorf wrapping")
	}
	if Classify(wrapped) != ErrorClassThrottled {
		t.Errorf("Expected throttled classification, got %s", Classify(wrapped))
	}
}

func TestClassify_UnclassifiedErrors(t *testing.T) {
	if Classify(errors.New("plain")) != ErrorClassUnknown {
		t.Error("Expected plain errors to classify as unknown")
	}
	if Classify(nil) != ErrorClassUnknown {
		t.Error("Expected nil to classify as unknown")
	}
}

func TestAsCloudError(t *testing.T) {
	if AsCloudError(nil) != nil {
		t.Error("Expected nil for nil input")
	}

	original := NewNotFoundError("missing role", nil)
	if got := AsCloudError(fmt.Errorf("observe: %w", original)); got != original {
		t.Errorf("Expected the original CloudError back, got %v", got)
	}

	plain := errors.New("connection reset")
	converted := AsCloudError(plain)
	if converted.Class != ErrorClassUnknown {
		t.Errorf("Expected unknown class for plain error, got %s", converted.Class)
	}
	if converted.Unwrap() != plain {
		t.Error("Expected the plain error preserved as the cause")
	}
}

func TestCloudError_Builders(t *testing.T) {
	err := NewConflictError("role already exists", nil).
		WithResource("nightly-export-role").
		WithOperation("CreateRole").
		WithCode(ErrCodeAlreadyExists).
		WithDetail("requestId", "req-123")

	if err.Resource != "nightly-export-role" {
		t.Errorf("Expected resource nightly-export-role, got %s", err.Resource)
	}
	if err.Operation != "CreateRole" {
		t.Errorf("Expected operation CreateRole, got %s", err.Operation)
	}
	if err.Code != ErrCodeAlreadyExists {
		t.Errorf("Expected code %s, got %s", ErrCodeAlreadyExists, err.Code)
	}
	if err.Details["requestId"] != "req-123" {
		t.Errorf("Expected requestId detail, got %v", err.Details["requestId"])
	}

	msg := err.Error()
	if !strings.Contains(msg, "conflict") {
		t.Errorf("Expected message to carry the class, got %q", msg)
	}
	if !strings.Contains(msg, "nightly-export-role") {
		t.Errorf("Expected message to carry the resource, got %q", msg)
	}
	if !strings.Contains(msg, "CreateRole") {
		t.Errorf("Expected message to carry the operation, got %q", msg)
	}
}

func TestCloudError_IsMatchesClassAndCode(t *testing.T) {
	a := NewThrottledError("slow down", nil).WithCode(ErrCodeRateLimited)
	b := NewThrottledError("different message", nil).WithCode(ErrCodeRateLimited)
	c := NewThrottledError("slow down", nil).WithCode(ErrCodeTimeout)

	if !errors.Is(a, b) {
		t.Error("Expected errors with matching class and code to match")
	}
	if errors.Is(a, c) {
		t.Error("Expected errors with different codes not to match")
	}
	if errors.Is(a, errors.New("slow down")) {
		t.Error("Expected a CloudError not to match a plain error")
	}
}

func TestObserveError(t *testing.T) {
	cause := NewTransientError("dial tcp: i/o timeout", nil)
	err := NewObserveError(FacetFunction, cause)

	if err.Facet != FacetFunction {
		t.Errorf("Expected facet %s, got %s", FacetFunction, err.Facet)
	}
	if !strings.Contains(err.Error(), "function") {
		t.Errorf("Expected message to name the facet, got %q", err.Error())
	}
	if !IsTransient(err) {
		t.Error("Expected the classification to survive ObserveError wrapping")
	}

	var observeErr *ObserveError
	if !errors.As(fmt.Errorf("run aborted: %w", err), &observeErr) {
		t.Error("Expected errors.As to find the ObserveError through wrapping")
	}
}

func TestPlanError(t *testing.T) {
	err := NewPlanError("function.memoryMB", "must be positive")

	if err.Field != "function.memoryMB" {
		t.Errorf("Expected field function.memoryMB, got %s", err.Field)
	}
	msg := err.Error()
	if !strings.Contains(msg, "function.memoryMB") || !strings.Contains(msg, "must be positive") {
		t.Errorf("Expected message to carry field and reason, got %q", msg)
	}

	var planErr *PlanError
	if !errors.As(fmt.Errorf("validate: %w", err), &planErr) {
		t.Error("Expected errors.As to find the PlanError through wrapping")
	}
}
