// Package domain defines the vehicle lookup types, constants, and query
// validation. It acts as the validation gate in front of any storage or
// provider I/O.
package domain

import (
	"math"
	"time"
)

// Kind identifies which registry identifier a query carries.
type Kind string

const (
	KindChassis Kind = "chassis"
	KindPlate   Kind = "plate"
	KindRenavam Kind = "renavam"
)

// ValidKinds is the set of recognised identifier kinds.
var ValidKinds = map[Kind]bool{
	KindChassis: true, KindPlate: true, KindRenavam: true,
}

// Variant selects one of the provider's lookup endpoints.
type Variant string

const (
	// VariantState covers vehicles registered in the provider's home state.
	VariantState Variant = "state-registry"
	// VariantNational covers everything else, including zero-km vehicles.
	VariantNational Variant = "national-registry"
)

// ValidVariants is the set of recognised endpoint variants.
var ValidVariants = map[Variant]bool{
	VariantState: true, VariantNational: true,
}

// Query is a single vehicle lookup request.
type Query struct {
	Kind    Kind    `json:"kind"`
	Value   string  `json:"value"`
	UF      string  `json:"uf,omitempty"`
	Variant Variant `json:"variant,omitempty"`
}

// Key returns the identity used for caching and de-duplication.
func (q Query) Key() string { return string(q.Kind) + ":" + q.Value }

// Record is the normalized vehicle data kept by the cache.
type Record struct {
	ID string `json:"id"`

	Plate   string `json:"plate,omitempty"`
	Chassis string `json:"chassis,omitempty"`
	Renavam string `json:"renavam,omitempty"`
	UF      string `json:"uf,omitempty"`

	Make            string `json:"make,omitempty"`
	Model           string `json:"model,omitempty"`
	ModelYear       int    `json:"model_year,omitempty"`
	ManufactureYear int    `json:"manufacture_year,omitempty"`
	Color           string `json:"color,omitempty"`
	FuelType        string `json:"fuel_type,omitempty"`
	Category        string `json:"category,omitempty"`

	// Extra keeps provider-specific fields for traceability.
	Extra map[string]any `json:"extra,omitempty"`

	Source      Variant   `json:"source,omitempty"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// Identifier returns the record's value for the given kind.
func (r Record) Identifier(k Kind) string {
	switch k {
	case KindChassis:
		return r.Chassis
	case KindPlate:
		return r.Plate
	case KindRenavam:
		return r.Renavam
	}
	return ""
}

// Identifiers returns every non-empty identifier carried by the record.
func (r Record) Identifiers() map[Kind]string {
	out := make(map[Kind]string, 3)
	for _, k := range []Kind{KindChassis, KindPlate, KindRenavam} {
		if v := r.Identifier(k); v != "" {
			out[k] = v
		}
	}
	return out
}

// IsFresh reports whether the record may be reused at now under ttl.
func (r Record) IsFresh(now time.Time, ttl time.Duration) bool {
	return !r.RefreshedAt.IsZero() && now.Sub(r.RefreshedAt) <= ttl
}

// DefaultTTLDays is the cache freshness window used when none is configured.
const DefaultTTLDays = 30

// maxTTLDays is the largest day count representable as a time.Duration.
const maxTTLDays = math.MaxInt64 / int64(24*time.Hour)

// TTL converts a day count into a duration, falling back to DefaultTTLDays.
// Day counts too large for a Duration saturate at the maximum.
func TTL(days int) time.Duration {
	if days <= 0 {
		days = DefaultTTLDays
	}
	if int64(days) > maxTTLDays {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(days) * 24 * time.Hour
}
