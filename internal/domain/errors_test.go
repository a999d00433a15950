package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestDomainErrors_Sentinels checks the code and message of every sentinel
func TestDomainErrors_Sentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		code     ErrorCode
		contains string
	}{
		{"subscription_not_found", ErrSubscriptionNotFound, ErrorCodeSubscriptionNotFound, "subscription not found"},
		{"subscription_duplicate", ErrSubscriptionDuplicate, ErrorCodeSubscriptionDuplicate, "already exists"},
		{"checkout_not_found", ErrCheckoutNotFound, ErrorCodeCheckoutNotFound, "checkout session not found"},
		{"invalid_signature", ErrInvalidSignature, ErrorCodeWebhookInvalidSignature, "signature verification failed"},
		{"gateway_disabled", ErrGatewayDisabled, ErrorCodeGatewayDisabled, "disabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("code = %s, want %s", tt.err.Code, tt.code)
			}
			if !strings.Contains(tt.err.Error(), tt.contains) {
				t.Errorf("error %q does not contain %q", tt.err.Error(), tt.contains)
			}
			if !strings.HasPrefix(tt.err.Error(), string(tt.code)+": ") {
				t.Errorf("error %q does not start with its code", tt.err.Error())
			}
		})
	}
}

// TestDomainErrors_Wrapping tests that domain errors survive fmt.Errorf wrapping
func TestDomainErrors_Wrapping(t *testing.T) {
	tests := []struct {
		name        string
		baseErr     error
		wrapMessage string
	}{
		{"wrap_subscription_not_found", ErrSubscriptionNotFound, "apply provider event"},
		{"wrap_checkout_not_found", ErrCheckoutNotFound, "confirm checkout"},
		{"wrap_invalid_signature", ErrInvalidSignature, "verify paypal webhook"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("%s: %w", tt.wrapMessage, tt.baseErr)

			if !strings.Contains(wrapped.Error(), tt.wrapMessage) {
				t.Errorf("wrapped error %q does not contain wrap message %q", wrapped.Error(), tt.wrapMessage)
			}
			if !errors.Is(wrapped, tt.baseErr) {
				t.Errorf("errors.Is failed: wrapped error does not match base error %v", tt.baseErr)
			}
		})
	}
}

func TestWrapError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := WrapError(ErrorCodeDatabaseError, "load subscription", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the wrapped cause")
	}
	if got := err.Error(); got != "INTERNAL_DATABASE_ERROR: load subscription: connection reset by peer" {
		t.Errorf("Error() = %q", got)
	}
	if GetErrorCode(fmt.Errorf("outer: %w", err)) != ErrorCodeDatabaseError {
		t.Error("GetErrorCode should see through fmt wrapping")
	}
}

func TestNewCannotError(t *testing.T) {
	err := NewCannotError("resume", "cancellation was initiated by the provider")

	if err.Message != "error_cannot_resume" {
		t.Errorf("Message = %q, want error_cannot_resume", err.Message)
	}
	if !IsTransitionError(err) {
		t.Error("cannot error should be a transition error")
	}
	if got := Reason(fmt.Errorf("admin: %w", err)); got != "cancellation was initiated by the provider" {
		t.Errorf("Reason = %q", got)
	}
	if err.Details["action"] != "resume" {
		t.Errorf("action detail = %v", err.Details["action"])
	}
}

// TestDomainErrors_Classification covers the predicates handlers switch on
func TestDomainErrors_Classification(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		notFound     bool
		validation   bool
		transition   bool
		expectedCode ErrorCode
	}{
		{"subscription_not_found", ErrSubscriptionNotFound, true, false, false, ErrorCodeSubscriptionNotFound},
		{"checkout_not_found", fmt.Errorf("take: %w", ErrCheckoutNotFound), true, false, false, ErrorCodeCheckoutNotFound},
		{"malformed_webhook", NewDomainError(ErrorCodeWebhookMalformed, "no event type"), false, true, false, ErrorCodeWebhookMalformed},
		{"validation_failed", NewDomainError(ErrorCodeValidationFailed, "plan_id required"), false, true, false, ErrorCodeValidationFailed},
		{"missing_field", NewDomainError(ErrorCodeValidationMissingField, "user_id"), false, true, false, ErrorCodeValidationMissingField},
		{"cannot_delete", NewCannotError("delete", "subscription is active"), false, false, true, ErrorCodeInvalidTransition},
		{"plain_error", errors.New("boom"), false, false, false, ""},
		{"nil", nil, false, false, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFoundError(tt.err); got != tt.notFound {
				t.Errorf("IsNotFoundError = %v, want %v", got, tt.notFound)
			}
			if got := IsValidationError(tt.err); got != tt.validation {
				t.Errorf("IsValidationError = %v, want %v", got, tt.validation)
			}
			if got := IsTransitionError(tt.err); got != tt.transition {
				t.Errorf("IsTransitionError = %v, want %v", got, tt.transition)
			}
			if got := GetErrorCode(tt.err); got != tt.expectedCode {
				t.Errorf("GetErrorCode = %q, want %q", got, tt.expectedCode)
			}
		})
	}
}

func TestIsDomainError(t *testing.T) {
	err := fmt.Errorf("handle: %w", ErrGatewayDisabled)

	if !IsDomainError(err, ErrorCodeGatewayDisabled) {
		t.Error("IsDomainError should match the wrapped code")
	}
	if IsDomainError(err, ErrorCodeGatewayError) {
		t.Error("IsDomainError should not match a different code")
	}
	if Reason(err) != "" {
		t.Error("Reason should be empty without a reason detail")
	}
}

func TestWithDetail_InitializesMap(t *testing.T) {
	err := (&DomainError{Code: ErrorCodeGatewayError, Message: "provider down"}).WithDetail("gateway", "north")
	if err.Details["gateway"] != "north" {
		t.Errorf("detail not recorded: %v", err.Details)
	}
}
