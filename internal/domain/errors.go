package domain

import (
	"errors"
	"fmt"
	"time"
)

// DomainError represents a business rule violation
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

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInvalidState      = "INVALID_STATE"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInvalidAmount     = "INVALID_AMOUNT"
	ErrCodeTooEarly          = "TOO_EARLY"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeMissingField      = "MISSING_REQUIRED_FIELD"
)

func NewNotFoundError(entity, id string) *DomainError {
	return &DomainError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %s not found", entity, id),
	}
}

func NewForbiddenError(action string) *DomainError {
	return &DomainError{
		Code:    ErrCodeForbidden,
		Message: fmt.Sprintf("requester is not allowed to %s", action),
	}
}

func NewInvalidStateError(entity, current, expected string) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidState,
		Message: fmt.Sprintf("invalid state: %s is %s, expected %s", entity, current, expected),
	}
}

func NewConflictError(message string) *DomainError {
	return &DomainError{
		Code:    ErrCodeConflict,
		Message: message,
	}
}

func NewInvalidAmountError(amount int64) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidAmount,
		Message: fmt.Sprintf("invalid amount %d", amount),
	}
}

func NewRefundExceedsGrossError(requested, remaining int64) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidAmount,
		Message: fmt.Sprintf("refund of %d exceeds remaining refundable amount %d", requested, remaining),
	}
}

func NewTooEarlyError(releaseDate time.Time) *DomainError {
	return &DomainError{
		Code:    ErrCodeTooEarly,
		Message: fmt.Sprintf("escrow cannot be released before %s unless the booking is completed", releaseDate.Format(time.RFC3339)),
	}
}

func NewInvalidTransitionError(from, to string) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
	}
}

func NewMissingRequiredFieldError(field string) *DomainError {
	return &DomainError{
		Code:    ErrCodeMissingField,
		Message: fmt.Sprintf("%s is required", field),
	}
}

// IsErrorCode checks if an error is a DomainError with a specific code
func IsErrorCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
