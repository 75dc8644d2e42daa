package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the categorization core. Match them with errors.Is.
var (
	ErrValidation       = errors.New("validation error")
	ErrModelUnavailable = errors.New("model not loaded")
	ErrInference        = errors.New("inference error")
	ErrStorage          = errors.New("storage error")
)

// ValidationError reports a malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InferenceError is returned when every classifier invocation strategy failed.
// Cause holds the failure of the last strategy attempted.
type InferenceError struct {
	Cause error
}

func (e *InferenceError) Error() string {
	if e.Cause == nil {
		return ErrInference.Error()
	}
	return fmt.Sprintf("%s: %v", ErrInference, e.Cause)
}

func (e *InferenceError) Is(target error) bool { return target == ErrInference }

func (e *InferenceError) Unwrap() error { return e.Cause }

// StorageError wraps an I/O failure of the transaction store.
type StorageError struct {
	Op    string
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorage, e.Op, e.Cause)
}

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func (e *StorageError) Unwrap() error { return e.Cause }
