package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory represents the category of error for handling
type ErrorCategory string

const (
	CategoryNetworkError   ErrorCategory = "network_error"
	CategoryProviderError  ErrorCategory = "provider_error"
	CategoryAuthError      ErrorCategory = "auth_error"
	CategoryInvalidRequest ErrorCategory = "invalid_request"
	CategoryUnavailable    ErrorCategory = "unavailable"
)

// Gateway error codes
const (
	CodeNetworkError = "NETWORK_ERROR"
	CodeGatewayError = "GATEWAY_ERROR"
	CodeRequestError = "REQUEST_ERROR"
	CodeAuthError    = "AUTH_ERROR"
	CodeCircuitOpen  = "CIRCUIT_OPEN"
	CodeDecodeError  = "DECODE_ERROR"
)

// GatewayError represents a failed call to a payment provider
type GatewayError struct {
	Code           string
	Message        string
	GatewayMessage string
	StatusCode     int
	IsRetriable    bool
	Category       ErrorCategory
	Err            error
}

func (e *GatewayError) Error() string {
	if e.GatewayMessage != "" {
		return fmt.Sprintf("%s: %s (gateway: %s)", e.Code, e.Message, e.GatewayMessage)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the transport error, if any
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewGatewayError creates a new gateway error
func NewGatewayError(code, message string, category ErrorCategory, retriable bool) *GatewayError {
	return &GatewayError{
		Code:        code,
		Message:     message,
		Category:    category,
		IsRetriable: retriable,
	}
}

// WithCause attaches the underlying error
func (e *GatewayError) WithCause(err error) *GatewayError {
	e.Err = err
	return e
}

// FromStatus maps an HTTP status returned by a provider to a gateway error
func FromStatus(status int, body string) *GatewayError {
	var ge *GatewayError
	switch {
	case status == 401 || status == 403:
		ge = NewGatewayError(CodeAuthError, fmt.Sprintf("provider rejected credentials (HTTP %d)", status), CategoryAuthError, false)
	case status == 429 || status >= 500:
		ge = NewGatewayError(CodeGatewayError, fmt.Sprintf("provider error (HTTP %d)", status), CategoryProviderError, true)
	default:
		ge = NewGatewayError(CodeRequestError, fmt.Sprintf("request rejected (HTTP %d)", status), CategoryInvalidRequest, false)
	}
	ge.StatusCode = status
	ge.GatewayMessage = body
	return ge
}

// IsGatewayError reports whether err is, or wraps, a GatewayError
func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}

// IsRetriable reports whether err is a retriable gateway error
func IsRetriable(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.IsRetriable
	}
	return false
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
