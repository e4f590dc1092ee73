package aws

import (
	"context"
	"errors"

	"github.com/aws/smithy-go"

	"github.com/cronverge/cronverge/pkg/engine"
)

// classify maps an SDK failure to a classified CloudError. The raw AWS error
// code is preserved on the error for programmatic handling; the class drives
// the engine's retry decision.
func classify(err error, operation, resource string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return engine.NewTransientError("request timed out", err).
			WithCode(engine.ErrCodeTimeout).
			WithOperation(operation).
			WithResource(resource)
	}
	if errors.Is(err, context.Canceled) {
		return engine.NewUnknownError("request cancelled", err).
			WithCode(engine.ErrCodeCancelled).
			WithOperation(operation).
			WithResource(resource)
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return engine.NewUnknownError("provider call failed", err).
			WithOperation(operation).
			WithResource(resource)
	}

	cloudErr := classifyCode(apiErr, err)
	return cloudErr.
		WithCode(apiErr.ErrorCode()).
		WithOperation(operation).
		WithResource(resource)
}

// classifyCode maps an AWS error code to an error class. Codes cover the
// three services the provider talks to: IAM, Lambda, and EventBridge.
func classifyCode(apiErr smithy.APIError, err error) *engine.CloudError {
	switch apiErr.ErrorCode() {
	case "Throttling", "ThrottlingException", "TooManyRequestsException",
		"RequestLimitExceeded", "LimitExceeded", "LimitExceededException":
		return engine.NewThrottledError("request was throttled", err)

	case "ResourceNotFoundException", "NoSuchEntity", "NotFoundException":
		return engine.NewNotFoundError("resource not found", err)

	case "EntityAlreadyExists", "ResourceConflictException",
		"ResourceAlreadyExistsException":
		return engine.NewConflictError("resource already exists", err)

	case "ConcurrentModification", "ConcurrentModificationException",
		"ResourceInUseException", "DeleteConflict", "PreconditionFailedException":
		return engine.NewConflictError("resource is being modified concurrently", err)

	case "AccessDenied", "AccessDeniedException", "UnauthorizedOperation",
		"InvalidClientTokenId", "UnrecognizedClientException",
		"ExpiredToken", "ExpiredTokenException":
		return engine.NewPermissionDeniedError("access denied", err)

	case "ServiceException", "ServiceFailure", "ServiceUnavailable",
		"ServiceUnavailableException", "InternalException", "InternalFailure",
		"RequestTimeout", "RequestTimeoutException":
		return engine.NewTransientError("provider service error", err)

	case "ValidationException", "ValidationError",
		"InvalidParameterValueException", "MalformedPolicyDocument":
		return engine.NewUnknownError("request rejected as invalid", err)
	}

	// Unlisted server faults are worth a retry; everything else is not.
	if apiErr.ErrorFault() == smithy.FaultServer {
		return engine.NewTransientError("provider service error", err)
	}
	return engine.NewUnknownError("provider call failed", err)
}
