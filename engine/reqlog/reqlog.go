// Package reqlog persists the append-only provider request log.
package reqlog

import (
	"context"
	"errors"

	"github.com/veicheck/veicheck/engine/lookup"
)

// Reader returns the most recent entries, newest first.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]lookup.Entry, error)
}

// Multi appends every entry to each sink, joining their errors.
type Multi []lookup.RequestLog

func (m Multi) Append(ctx context.Context, e lookup.Entry) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
