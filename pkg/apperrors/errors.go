// Package apperrors defines the error taxonomy shared across the cutover
// control plane. Handlers map these onto HTTP statuses; services return them
// wrapped with context via fmt.Errorf("...: %w", err).
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the referenced checklist item, snapshot, alert
	// or rollback record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a conflicting concurrent operation, e.g. a second
	// rollback against a snapshot that already has one executing, or seeding
	// a checklist that already exists.
	ErrConflict = errors.New("conflict")
)

// ValidationError indicates malformed input rejected before any state change.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// NewValidation builds a ValidationError for the given field.
func NewValidation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StorageError indicates a serialization or storage failure during snapshot
// capture or rollback restore. Retryable storage errors may be resolved by
// re-invoking the same operation.
type StorageError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsRetryable reports whether re-invoking the failed operation may succeed.
func (e *StorageError) IsRetryable() bool { return e.Retryable }

// NewStorage wraps err as a retryable StorageError for operation op.
func NewStorage(op string, err error) error {
	return &StorageError{Op: op, Retryable: true, Err: err}
}

// IsStorage reports whether err is (or wraps) a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
