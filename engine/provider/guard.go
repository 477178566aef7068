package provider

import (
	"context"
	"errors"

	"github.com/veicheck/veicheck/pkg/resilience"
)

// Fetcher is anything that can perform a provider lookup.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// Guard wraps a Fetcher with a circuit breaker. Only provider_unavailable
// failures count against the breaker; an open breaker short-circuits to a
// provider_unavailable LookupError.
type Guard struct {
	next    Fetcher
	breaker *resilience.Breaker
}

// NewGuard creates a Guard around next.
func NewGuard(next Fetcher, breaker *resilience.Breaker) *Guard {
	return &Guard{next: next, breaker: breaker}
}

func (g *Guard) Fetch(ctx context.Context, req Request) (*Response, error) {
	resp, err := resilience.Do(ctx, g.breaker, func(ctx context.Context) (*Response, error) {
		return g.next.Fetch(ctx, req)
	}, unavailable)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, &LookupError{Category: CategoryUnavailable, Message: err.Error()}
	}
	return resp, err
}

func unavailable(err error) bool { return CategoryOf(err) == CategoryUnavailable }
