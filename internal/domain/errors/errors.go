package errors

import (
	"errors"
	"fmt"
)

var (
	// Record errors
	ErrOrderNotFound        = errors.New("order not found")
	ErrRegistrationNotFound = errors.New("event registration not found")
	ErrInvalidRecordKind    = errors.New("invalid record kind")

	// Status transition errors
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrTerminalState          = errors.New("record already in a terminal payment state")

	// Gateway errors
	ErrGatewayNotFound    = errors.New("payment gateway not found")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayTimeout     = errors.New("gateway request timeout")

	// Resolver errors
	ErrAmbiguousReference = errors.New("merchant reference matches no known record")
	ErrMissingReference   = errors.New("missing tracking id or merchant reference")

	// Configuration errors
	ErrConfigIncomplete = errors.New("gateway credentials missing or incomplete")

	// Validation errors
	ErrInvalidInput = errors.New("invalid input")

	// Idempotency errors
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// AuthError is returned when a gateway rejects credentials or answers with a
// malformed token response. GatewayBody carries the gateway's raw reply so an
// operator can diagnose the rejection.
type AuthError struct {
	Gateway     string
	GatewayBody string
	Err         error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s auth failed: %s", e.Gateway, e.GatewayBody)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewAuthError creates a new gateway auth error.
func NewAuthError(gateway, body string, err error) *AuthError {
	return &AuthError{Gateway: gateway, GatewayBody: body, Err: err}
}

// SubmissionError is returned when a gateway declines a payment request.
// GatewayBody carries the gateway's error payload verbatim for the checkout UI.
type SubmissionError struct {
	Gateway     string
	GatewayBody string
	Err         error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s rejected payment request: %s", e.Gateway, e.GatewayBody)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// NewSubmissionError creates a new gateway submission error.
func NewSubmissionError(gateway, body string, err error) *SubmissionError {
	return &SubmissionError{Gateway: gateway, GatewayBody: body, Err: err}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
