package errors

import (
	"errors"
	"fmt"
)

var (
	// Configuration errors
	ErrConfigInvalid     = errors.New("merchant configuration invalid")
	ErrConfigUnavailable = errors.New("platform configuration unavailable")

	// Payment processor errors
	ErrCardDeclined      = errors.New("card declined")
	ErrInvalidInstrument = errors.New("invalid payment instrument")
	ErrRateLimited       = errors.New("dependent service rate limited")
	ErrProcessor         = errors.New("payment processor error")
	ErrFraudRejected     = errors.New("charge failed fraud check")

	// Processor account connection errors
	ErrConnectExpired  = errors.New("processor connect link expired")
	ErrConnectRejected = errors.New("processor authorization rejected")

	// Ledger errors
	ErrLedgerRejected    = errors.New("ledger rejected request")
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	ErrUnitNotFound      = errors.New("ledger unit not found")
	ErrUnitWrongKind     = errors.New("ledger unit is not a gift card")

	// Notification errors
	ErrDeliveryFailed   = errors.New("gift card delivery failed")
	ErrTemplateMismatch = errors.New("template placeholders do not match replacements")

	// Idempotency errors
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// Lock errors
	ErrLockNotHeld = errors.New("lock not held")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")

	// Validation errors
	ErrInvalidInput = errors.New("invalid input")
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

// ValidationError represents a validation error. Code is the machine readable
// reason reported to the caller; when empty the generic validation code is used.
type ValidationError struct {
	Field   string
	Code    string
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

// NewCodedValidationError creates a validation error with an explicit code.
func NewCodedValidationError(code, field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Code:    code,
		Message: message,
	}
}
