package domain

import (
	"strconv"
	"strings"

	"github.com/veicheck/veicheck/engine/chassis"
)

// NormalizeQuery validates q and returns it with a canonical identifier.
// It performs no I/O and must run before any storage or provider call.
func NormalizeQuery(q Query) (Query, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(string(q.Kind))))
	if !ValidKinds[kind] {
		return Query{}, NewValidationError("kind", string(q.Kind), ErrUnknownKind)
	}

	value, err := NormalizeIdentifier(kind, q.Value)
	if err != nil {
		return Query{}, err
	}

	uf := strings.ToUpper(strings.TrimSpace(q.UF))
	if uf != "" {
		if _, ok := FederativeUnits[uf]; !ok {
			return Query{}, NewValidationError("uf", q.UF, ErrUnknownUF)
		}
	}

	variant := Variant(strings.ToLower(strings.TrimSpace(string(q.Variant))))
	if variant != "" && !ValidVariants[variant] {
		return Query{}, NewValidationError("variant", string(q.Variant), ErrUnknownVariant)
	}

	return Query{Kind: kind, Value: value, UF: uf, Variant: variant}, nil
}

// NormalizeIdentifier canonicalizes an identifier of the given kind and
// enforces its minimum length.
func NormalizeIdentifier(kind Kind, raw string) (string, error) {
	minLen, ok := minLengths[kind]
	if !ok {
		return "", NewValidationError("kind", string(kind), ErrUnknownKind)
	}
	v := CanonicalIdentifier(kind, raw)
	if len(v) < minLen {
		return "", tooShort(kind, raw, minLen)
	}
	return v, nil
}

var minLengths = map[Kind]int{
	KindChassis: MinChassisLength,
	KindPlate:   MinPlateLength,
	KindRenavam: MinRenavamLength,
}

// CanonicalIdentifier strips formatting from an identifier without
// checking its length: chassis and plates keep uppercase alphanumerics,
// RENAVAM keeps digits.
func CanonicalIdentifier(kind Kind, raw string) string {
	if kind == KindRenavam {
		return digitsOnly(raw)
	}
	return chassis.Normalize(raw)
}

func tooShort(kind Kind, raw string, minLen int) error {
	return NewValidationError(string(kind)+" (min "+strconv.Itoa(minLen)+")", raw, ErrQueryTooShort)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
