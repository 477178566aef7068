// Package repo defines the generic Repository interface backed by Neo4j.
package repo

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no node carries the requested id.
var ErrNotFound = errors.New("repo: not found")

// Repository is a generic keyed store.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	FindBy(ctx context.Context, prop string, value any) (T, bool, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
	Upsert(ctx context.Context, id ID, entity T) (T, error)
	Delete(ctx context.Context, id ID) error
}

// ListOpts controls pagination for List operations.
type ListOpts struct {
	Offset int
	Limit  int
}
