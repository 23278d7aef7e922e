package models

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks across the ledger's error taxonomy.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInternalConsistency = errors.New("internal consistency violation")
)

// ValidationError reports input the caller must fix.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError reports a missing trip, member, expense or settlement.
type NotFoundError struct {
	Kind string
	ID   string
}

func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError reports that the ledger moved underneath the caller, or
// that a settlement asks for more than is outstanding. Callers may refetch
// and retry; the ledger itself never retries.
type ConflictError struct {
	Reason string

	// Requested and Available are set for over-settlement conflicts.
	Requested int64
	Available int64
}

func (e *ConflictError) Error() string {
	if e.Requested > 0 {
		return fmt.Sprintf("%s: requested %d, outstanding %d", e.Reason, e.Requested, e.Available)
	}
	return e.Reason
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// InternalConsistencyError reports a broken ledger invariant. It is never retryable.
type InternalConsistencyError struct {
	TripID string
	Detail string
}

func (e *InternalConsistencyError) Error() string {
	return fmt.Sprintf("ledger inconsistency in trip %s: %s", e.TripID, e.Detail)
}

func (e *InternalConsistencyError) Unwrap() error { return ErrInternalConsistency }
