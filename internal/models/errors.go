package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input. Never retried.
	ErrValidation = errors.New("validation error")

	// ErrEmbeddingService marks a failure of the embedding provider
	// (transport, quota, timeout).
	ErrEmbeddingService = errors.New("embedding service error")

	// ErrStorageUnavailable marks a database or connection failure.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// CheckDimension fails when a vector of length got is offered to a store of
// dimension want.
func CheckDimension(field string, got, want int) error {
	if got != want {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("expected %d dimensions, got %d", want, got),
		}
	}
	return nil
}
