package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation failures.
var (
	ErrInvalidQuery   = errors.New("invalid query")
	ErrUnknownKind    = errors.New("unknown identifier kind")
	ErrQueryTooShort  = errors.New("identifier too short")
	ErrUnknownUF      = errors.New("unknown federative unit")
	ErrUnknownVariant = errors.New("unknown endpoint variant")
)

// ValidationError wraps a sentinel with context. Every ValidationError is
// also an ErrInvalidQuery.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() []error { return []error{e.Wrapped, ErrInvalidQuery} }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
