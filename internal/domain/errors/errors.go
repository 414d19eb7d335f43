package errors

import (
	"errors"
	"fmt"
)

var (
	// Session errors
	ErrSessionNotFound        = errors.New("purchase session not found")
	ErrConcurrentModification = errors.New("concurrent session modification")
	ErrSessionExpired         = errors.New("purchase session expired")

	// Purchase errors
	ErrInvalidContext         = errors.New("invalid purchase context")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrPurchaseFinalized      = errors.New("purchase already finalized")
	ErrCascadeExhausted       = errors.New("biller cascade exhausted")
	ErrNoEligibleBiller       = errors.New("no eligible biller for purchase context")

	// 3DS errors
	ErrThreeDSContextExpired = errors.New("3ds context expired or mismatched")
	ErrThreeDSNotActive      = errors.New("purchase is not in a 3ds state")

	// Biller errors
	ErrBillerNotFound    = errors.New("biller not found")
	ErrBillerUnavailable = errors.New("biller unavailable")
	ErrBillerTimeout     = errors.New("biller request timeout")

	// Call gate errors
	ErrCircuitOpen       = errors.New("circuit open")
	ErrDependencyTimeout = errors.New("dependency call timeout")

	// Codec errors
	ErrUnsupportedSchemaVersion = errors.New("unsupported session schema version")

	// Postback errors
	ErrPostbackRejected = errors.New("postback rejected by endpoint")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
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
