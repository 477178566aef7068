// Package store holds the vehicle record backends used by the resolver.
// Every backend replaces a record wholesale on Upsert and reuses the ID of
// any stored record sharing one of its identifiers.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/veicheck/veicheck/engine/domain"
)

// ErrNoIdentifier is returned by Upsert for records without any identifier.
var ErrNoIdentifier = errors.New("store: record has no identifier")

type finder interface {
	FindByIdentifier(ctx context.Context, kind domain.Kind, value string) (domain.Record, bool, error)
}

// assignID fills rec.ID, reusing the ID of an existing record that shares
// one of rec's identifiers.
func assignID(ctx context.Context, f finder, rec domain.Record) (domain.Record, error) {
	ids := rec.Identifiers()
	if len(ids) == 0 {
		return rec, ErrNoIdentifier
	}
	if rec.ID != "" {
		return rec, nil
	}
	for _, k := range []domain.Kind{domain.KindChassis, domain.KindRenavam, domain.KindPlate} {
		v, ok := ids[k]
		if !ok {
			continue
		}
		existing, found, err := f.FindByIdentifier(ctx, k, v)
		if err != nil {
			return rec, err
		}
		if found {
			rec.ID = existing.ID
			return rec, nil
		}
	}
	rec.ID = uuid.NewString()
	return rec, nil
}
