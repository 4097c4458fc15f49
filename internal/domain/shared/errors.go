// Package shared contains common domain types, errors and events
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Validation errors
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidID    = errors.New("invalid ID")

	// Ledger errors
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidTarget       = errors.New("invalid target")

	// Read-side errors. NoData is a typed empty result, not a failure.
	ErrNoData   = errors.New("no data")
	ErrNotFound = errors.New("entity not found")

	// Infrastructure errors
	ErrStorage            = errors.New("storage error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "study", "leaderboard", "transfer"
	Op      string // Operation that failed, e.g., "Apply", "Save"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// StorageError wraps a persistence failure so callers can match ErrStorage.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) && errors.Is(err, ErrStorage) {
		return err
	}
	return WrapError("storage", op, ErrStorage, "storage operation failed", err)
}

// Study ledger errors
var (
	ErrEmptyUserID      = NewDomainError("study", "Validate", ErrInvalidID, "user id cannot be empty")
	ErrNonPositiveDelta = NewDomainError("study", "Apply", ErrInvalidInput, "session duration must be positive")
	ErrSessionTooLong   = NewDomainError("study", "Apply", ErrInvalidInput, "session duration cannot exceed 24 hours")
)

// Transfer errors
var (
	ErrNonPositiveHours = NewDomainError("transfer", "Validate", ErrInvalidInput, "hours must be greater than zero")
	ErrMissingReceiver  = NewDomainError("transfer", "Validate", ErrInvalidInput, "receiver is required")
	ErrSelfTransfer     = NewDomainError("transfer", "Validate", ErrInvalidTarget, "cannot transfer to self")
	ErrNotEnoughBalance = NewDomainError("transfer", "Execute", ErrInsufficientBalance, "sender balance is too low")
)

// Session tracking errors
var (
	ErrSessionAlreadyActive = NewDomainError("session", "Start", ErrInvalidInput, "session already active")
	ErrNoActiveSession      = NewDomainError("session", "Stop", ErrNotFound, "no active session")
)

// IsInvalidInput checks if the error is a validation error.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrInvalidID)
}

// IsInsufficientBalance checks if a transfer failed for lack of balance.
func IsInsufficientBalance(err error) bool {
	return errors.Is(err, ErrInsufficientBalance)
}

// IsInvalidTarget checks if a transfer targeted the sender.
func IsInvalidTarget(err error) bool {
	return errors.Is(err, ErrInvalidTarget)
}

// IsNoData checks if the error signals an empty result.
func IsNoData(err error) bool {
	return errors.Is(err, ErrNoData)
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsStorage checks if the error came from the persistence layer.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
