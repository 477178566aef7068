// Package resilience provides a circuit breaker for outbound calls.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// ErrCircuitOpen is returned without calling through while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerOpts configures the circuit breaker. Zero values take the defaults
// from DefaultBreakerOpts.
type BreakerOpts struct {
	// FailThreshold is how many consecutive failures trip the breaker.
	FailThreshold int
	// Timeout is how long the breaker stays open before letting probes through.
	Timeout time.Duration
	// HalfOpenMax is the number of concurrent probes allowed while half-open.
	HalfOpenMax int
	// OnStateChange runs after every transition with the breaker lock held.
	// It must not call back into the breaker.
	OnStateChange func(from, to State)
}

// DefaultBreakerOpts holds the defaults applied by NewBreaker.
var DefaultBreakerOpts = BreakerOpts{
	FailThreshold: 5,
	Timeout:       30 * time.Second,
	HalfOpenMax:   1,
}

// Breaker is a consecutive-failure circuit breaker.
type Breaker struct {
	opts BreakerOpts
	now  func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int
}

// NewBreaker creates a closed breaker.
func NewBreaker(opts BreakerOpts) *Breaker {
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = DefaultBreakerOpts.FailThreshold
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBreakerOpts.Timeout
	}
	if opts.HalfOpenMax <= 0 {
		opts.HalfOpenMax = DefaultBreakerOpts.HalfOpenMax
	}
	return &Breaker{opts: opts, now: time.Now}
}

// State returns the current state, moving an expired open breaker to half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expire()
	return b.state
}

// Call runs f through the breaker. Every non-nil error counts as a failure.
func (b *Breaker) Call(ctx context.Context, f func(context.Context) error) error {
	_, err := Do(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, f(ctx)
	}, nil)
	return err
}

// Do runs f through b and returns its results unchanged. counts decides
// which errors are failures for the breaker; nil counts every error. While
// the breaker rejects calls Do returns ErrCircuitOpen without running f.
func Do[T any](ctx context.Context, b *Breaker, f func(context.Context) (T, error), counts func(error) bool) (T, error) {
	if err := b.allow(); err != nil {
		var zero T
		return zero, err
	}
	v, err := f(ctx)
	b.record(err != nil && (counts == nil || counts(err)))
	return v, err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expire()
	switch b.state {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.probes >= b.opts.HalfOpenMax {
			return ErrCircuitOpen
		}
		b.probes++
	}
	return nil
}

func (b *Breaker) record(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !failed {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.probes = 0
			b.setState(StateClosed)
		}
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.opts.FailThreshold {
		b.failures = 0
		b.probes = 0
		b.openedAt = b.now()
		b.setState(StateOpen)
	}
}

// expire moves an open breaker whose timeout elapsed to half-open. Caller holds mu.
func (b *Breaker) expire() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.opts.Timeout {
		b.probes = 0
		b.setState(StateHalfOpen)
	}
}

// setState records a transition and fires the hook. Caller holds mu.
func (b *Breaker) setState(next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	if b.opts.OnStateChange != nil {
		b.opts.OnStateChange(prev, next)
	}
}
