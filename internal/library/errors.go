package library

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks an action rejected before it reached storage.
	ErrValidation = errors.New("validation failed")
	// ErrStorage marks a failed read or write of a persisted collection.
	ErrStorage = errors.New("storage failed")
	// ErrUnsaved is returned when a mutation is queued behind earlier
	// changes that have not been persisted yet.
	ErrUnsaved = errors.New("earlier changes are not saved yet")
	// ErrViewClosed is returned by a View after Close.
	ErrViewClosed = errors.New("view closed")
)

// ValidationError describes which input was missing or invalid.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// StorageError wraps a backend failure with the keys and operation involved.
// Pending is set when the change was kept locally and queued for retry.
type StorageError struct {
	Key     string
	Op      string
	Err     error
	Pending string
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

// Is lets errors.Is match both ErrStorage and the wrapped cause.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
