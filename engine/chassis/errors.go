package chassis

import (
	"errors"
	"fmt"
)

// Sentinel errors for chassis validation failures.
var (
	ErrEmptyInput        = errors.New("empty input")
	ErrWrongLength       = errors.New("wrong length")
	ErrInvalidCharacters = errors.New("invalid characters")
	ErrForbiddenLetter   = errors.New("forbidden letter")
	ErrChecksumMismatch  = errors.New("checksum mismatch")
)

// FormatError reports a structural problem with a chassis candidate.
type FormatError struct {
	Kind   error
	Input  string
	Length int
}

func (e *FormatError) Error() string {
	switch e.Kind {
	case ErrEmptyInput:
		return "chassis: input is empty"
	case ErrWrongLength:
		return fmt.Sprintf("chassis: must have exactly %d characters, got %d", Length, e.Length)
	case ErrInvalidCharacters:
		return fmt.Sprintf("chassis: %q contains characters outside A-Z and 0-9", e.Input)
	case ErrForbiddenLetter:
		return fmt.Sprintf("chassis: %q contains I, O or Q", e.Input)
	default:
		return fmt.Sprintf("chassis: %v (value=%q)", e.Kind, e.Input)
	}
}

func (e *FormatError) Unwrap() error { return e.Kind }

// ChecksumError reports a check digit that does not match the computed one.
// It is advisory: imported vehicles may not follow the domestic convention.
type ChecksumError struct {
	Expected byte
	Informed byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("chassis: check digit mismatch: expected %c, informed %c", e.Expected, e.Informed)
}

func (e *ChecksumError) Unwrap() error { return ErrChecksumMismatch }
