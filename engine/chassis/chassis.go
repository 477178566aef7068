// Package chassis validates Vehicle Identification Numbers (ISO 3779).
//
// All functions are pure and safe for concurrent use.
package chassis

import (
	"log/slog"
	"strings"
	"unicode/utf8"
)

// Length is the number of characters in a chassis.
const Length = 17

// checkDigitIndex is the position of the check digit within the chassis.
const checkDigitIndex = 8

var weights = [Length]int{8, 7, 6, 5, 4, 3, 2, 10, 0, 9, 8, 7, 6, 5, 4, 3, 2}

var transliteration = map[byte]int{
	'A': 1, 'B': 2, 'C': 3, 'D': 4, 'E': 5, 'F': 6, 'G': 7, 'H': 8,
	'J': 1, 'K': 2, 'L': 3, 'M': 4, 'N': 5, 'P': 7, 'R': 9,
	'S': 2, 'T': 3, 'U': 4, 'V': 5, 'W': 6, 'X': 7, 'Y': 8, 'Z': 9,
}

// Report bundles every check run against a chassis candidate.
type Report struct {
	Normalized  string
	FormatErr   error
	ChecksumErr error
}

// Valid reports whether the candidate passed the format checks.
func (r Report) Valid() bool { return r.FormatErr == nil }

// Normalize trims, uppercases and strips every non-alphanumeric character.
func Normalize(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range strings.ToUpper(strings.TrimSpace(input)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateFormat checks length, alphabet and forbidden letters.
func ValidateFormat(input string) error {
	s := strings.ToUpper(strings.TrimSpace(input))
	if s == "" {
		return &FormatError{Kind: ErrEmptyInput, Input: input}
	}
	if n := utf8.RuneCountInString(s); n != Length {
		return &FormatError{Kind: ErrWrongLength, Input: s, Length: n}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return &FormatError{Kind: ErrInvalidCharacters, Input: s, Length: Length}
		}
	}
	if strings.ContainsAny(s, "IOQ") {
		return &FormatError{Kind: ErrForbiddenLetter, Input: s, Length: Length}
	}
	return nil
}

// CheckDigit computes the expected check digit of a 17-character chassis.
// The result is '0'..'9' or 'X'. Characters outside the transliteration
// table count as zero.
func CheckDigit(chassis17 string) byte {
	sum := 0
	for i := 0; i < Length && i < len(chassis17); i++ {
		sum += charValue(chassis17[i]) * weights[i]
	}
	rem := sum % 11
	if rem == 10 {
		return 'X'
	}
	return byte('0' + rem)
}

func charValue(c byte) int {
	if c >= '0' && c <= '9' {
		return int(c - '0')
	}
	return transliteration[c]
}

// ValidateCheckDigit runs ValidateFormat and then compares the informed
// check digit against the computed one.
func ValidateCheckDigit(input string) error {
	if err := ValidateFormat(input); err != nil {
		return err
	}
	s := strings.ToUpper(strings.TrimSpace(input))
	expected := CheckDigit(s)
	if informed := s[checkDigitIndex]; informed != expected {
		return &ChecksumError{Expected: expected, Informed: informed}
	}
	return nil
}

// Inspect runs the format and checksum checks and reports both outcomes.
func Inspect(input string) Report {
	r := Report{Normalized: strings.ToUpper(strings.TrimSpace(input))}
	if err := ValidateFormat(input); err != nil {
		r.FormatErr = err
		return r
	}
	r.ChecksumErr = ValidateCheckDigit(input)
	return r
}

// ValidateChassis is the production entry point. Format errors are returned;
// a checksum mismatch is only logged because imported vehicles may not follow
// the domestic check digit convention.
func ValidateChassis(input string) (string, error) {
	r := Inspect(input)
	if r.FormatErr != nil {
		return "", r.FormatErr
	}
	if r.ChecksumErr != nil {
		slog.Warn("chassis check digit mismatch", "chassis", r.Normalized, "err", r.ChecksumErr)
	}
	return r.Normalized, nil
}
