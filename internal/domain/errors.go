package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Subscription Errors (SUBSCRIPTION_*)
	ErrorCodeSubscriptionNotFound  ErrorCode = "SUBSCRIPTION_NOT_FOUND"
	ErrorCodeSubscriptionDuplicate ErrorCode = "SUBSCRIPTION_DUPLICATE"
	ErrorCodeInvalidTransition     ErrorCode = "INVALID_TRANSITION"

	// Checkout Errors (CHECKOUT_*)
	ErrorCodeCheckoutNotFound ErrorCode = "CHECKOUT_NOT_FOUND"

	// Webhook Errors (WEBHOOK_*)
	ErrorCodeWebhookMalformed        ErrorCode = "WEBHOOK_MALFORMED"
	ErrorCodeWebhookInvalidSignature ErrorCode = "WEBHOOK_INVALID_SIGNATURE"

	// Validation Errors (VALIDATION_*)
	ErrorCodeValidationFailed       ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationMissingField ErrorCode = "VALIDATION_MISSING_FIELD"

	// Payment Gateway Errors (GATEWAY_*)
	ErrorCodeGatewayError       ErrorCode = "GATEWAY_ERROR"
	ErrorCodeGatewayDisabled    ErrorCode = "GATEWAY_DISABLED"
	ErrorCodeGatewayUnsupported ErrorCode = "GATEWAY_UNSUPPORTED"

	// Internal Errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// NewCannotError reports an admin action rejected by a lifecycle precondition.
// The message is the stable error_cannot_<action> token; reason names the
// predicate that failed.
func NewCannotError(action, reason string) *DomainError {
	return NewDomainError(ErrorCodeInvalidTransition, "error_cannot_"+action).
		WithDetail("action", action).
		WithDetail("reason", reason)
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeSubscriptionNotFound ||
		code == ErrorCodeCheckoutNotFound
}

// IsValidationError checks if an error is a caller input problem
func IsValidationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeValidationFailed ||
		code == ErrorCodeValidationMissingField ||
		code == ErrorCodeWebhookMalformed
}

// IsTransitionError checks if an error is a rejected lifecycle action
func IsTransitionError(err error) bool {
	return GetErrorCode(err) == ErrorCodeInvalidTransition
}

// Reason returns the failing predicate recorded on a cannot error, if any
func Reason(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		if r, ok := domainErr.Details["reason"].(string); ok {
			return r
		}
	}
	return ""
}

// Common sentinel errors, wrapped by the richer DomainError where context matters
var (
	ErrSubscriptionNotFound  = NewDomainError(ErrorCodeSubscriptionNotFound, "subscription not found")
	ErrSubscriptionDuplicate = NewDomainError(ErrorCodeSubscriptionDuplicate, "subscription already exists for this payment id")
	ErrCheckoutNotFound      = NewDomainError(ErrorCodeCheckoutNotFound, "checkout session not found or expired")
	ErrInvalidSignature      = NewDomainError(ErrorCodeWebhookInvalidSignature, "webhook signature verification failed")
	ErrGatewayDisabled       = NewDomainError(ErrorCodeGatewayDisabled, "payment gateway is disabled")
)
