package providers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spectreweave/orchestrator/models"
)

// ErrorCode classifies a ServiceError for retry and fallback decisions.
type ErrorCode string

const (
	// CodeConfigMissing marks a provider unusable for the process lifetime
	CodeConfigMissing ErrorCode = "CONFIG_MISSING"

	// CodeRateLimitExceeded is raised before contacting a provider whose
	// local quota is exhausted; not retried within the same call
	CodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// CodeCircuitOpen is raised when the provider's circuit breaker blocks
	// the attempt; not retried within the same call
	CodeCircuitOpen ErrorCode = "CIRCUIT_BREAKER_OPEN"

	// CodeTimeout marks a client-side deadline expiry; retryable
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeProviderError covers vendor-side failures (HTTP 5xx/429 retryable,
	// other 4xx not)
	CodeProviderError ErrorCode = "PROVIDER_ERROR"

	// CodeInvalidRequest marks a request the caller must fix; never retried
	CodeInvalidRequest ErrorCode = "INVALID_REQUEST"

	// CodeStreamingUnsupported is raised by adapters that cannot stream
	CodeStreamingUnsupported ErrorCode = "STREAMING_UNSUPPORTED"

	// CodeAllProvidersFailed is terminal: every candidate was exhausted.
	// Carries the last underlying error as Cause.
	CodeAllProvidersFailed ErrorCode = "ALL_PROVIDERS_FAILED"
)

// ServiceError is the structured error produced at the adapter boundary and
// propagated through the retry and failover layers.
type ServiceError struct {
	// Code classifies the failure
	Code ErrorCode

	// Message is a human-readable description
	Message string

	// Provider that produced the error, if any
	Provider models.Provider

	// StatusCode is the vendor HTTP status, when applicable
	StatusCode int

	// Retryable indicates whether the same attempt may be repeated
	Retryable bool

	// Cause is the underlying error
	Cause error

	// Details carries optional diagnostic context
	Details map[string]interface{}
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements error unwrapping
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a diagnostic key/value pair and returns the error.
func (e *ServiceError) WithDetail(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewServiceError creates a ServiceError with an explicit retryable flag.
func NewServiceError(code ErrorCode, provider models.Provider, message string, retryable bool, cause error) *ServiceError {
	return &ServiceError{
		Code:      code,
		Message:   message,
		Provider:  provider,
		Retryable: retryable,
		Cause:     cause,
	}
}

// NewTimeoutError creates the retryable error raised on a client-side deadline.
func NewTimeoutError(provider models.Provider, cause error) *ServiceError {
	return &ServiceError{
		Code:      CodeTimeout,
		Message:   "provider call exceeded deadline",
		Provider:  provider,
		Retryable: true,
		Cause:     cause,
	}
}

// NewHTTPError classifies a non-2xx vendor response. 5xx and 429 are
// retryable; every other status is not.
func NewHTTPError(provider models.Provider, statusCode int, body string) *ServiceError {
	retryable := statusCode >= 500 || statusCode == http.StatusTooManyRequests
	return &ServiceError{
		Code:       CodeProviderError,
		Message:    fmt.Sprintf("provider returned status %d: %s", statusCode, body),
		Provider:   provider,
		StatusCode: statusCode,
		Retryable:  retryable,
	}
}

// IsRetryable reports whether an error carries a retryable ServiceError.
func IsRetryable(err error) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Retryable
	}
	return false
}

// AsServiceError extracts a ServiceError from an error chain, or wraps a
// plain error as a non-retryable PROVIDER_ERROR.
func AsServiceError(err error, provider models.Provider) *ServiceError {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return NewServiceError(CodeProviderError, provider, err.Error(), false, err)
}

// ErrorCodeOf returns the code of a ServiceError in the chain, or empty.
func ErrorCodeOf(err error) ErrorCode {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	return ""
}
