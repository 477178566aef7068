// Package lookup resolves vehicle queries against the local cache, falling
// back to the provider when no fresh record exists.
package lookup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/veicheck/veicheck/engine/domain"
	"github.com/veicheck/veicheck/engine/provider"
	"github.com/veicheck/veicheck/pkg/metrics"
)

// DefaultHomeUF is the state served by the state-registry endpoint.
const DefaultHomeUF = "SP"

// Store persists normalized vehicle records.
type Store interface {
	FindByIdentifier(ctx context.Context, kind domain.Kind, value string) (domain.Record, bool, error)
	Upsert(ctx context.Context, rec domain.Record) (domain.Record, error)
}

// Provider performs one remote lookup.
type Provider interface {
	Fetch(ctx context.Context, req provider.Request) (*provider.Response, error)
}

// Result is the outcome of a successful Resolve.
type Result struct {
	Record    domain.Record `json:"record"`
	FromCache bool          `json:"from_cache"`
}

// Resolver implements cache-or-fetch.
type Resolver struct {
	store      Store
	provider   Provider
	log        RequestLog
	logger     *slog.Logger
	metrics    *metrics.Lookup
	now        func() time.Time
	tracer     trace.Tracer
	homeUF     string
	defaultTTL int

	sf *singleflight.Group
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option { return func(r *Resolver) { r.logger = l } }

// WithMetrics sets the Prometheus collectors. A nil *metrics.Lookup records nothing.
func WithMetrics(m *metrics.Lookup) Option { return func(r *Resolver) { r.metrics = m } }

// WithRequestLog sets where provider attempts are recorded (default: discarded).
func WithRequestLog(l RequestLog) Option { return func(r *Resolver) { r.log = l } }

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option { return func(r *Resolver) { r.now = now } }

// WithHomeUF sets the state served by the state-registry endpoint (default SP).
func WithHomeUF(uf string) Option { return func(r *Resolver) { r.homeUF = uf } }

// WithDefaultTTL sets the freshness window used when Resolve gets ttlDays <= 0.
func WithDefaultTTL(days int) Option { return func(r *Resolver) { r.defaultTTL = days } }

// WithTracer sets the tracer for the per-resolve span (default otel.Tracer).
func WithTracer(t trace.Tracer) Option { return func(r *Resolver) { r.tracer = t } }

// WithSingleFlight collapses concurrent resolves of the same identifier
// into one provider call. The shared call outlives a caller that gives up;
// it is bounded by the provider client's own timeout.
func WithSingleFlight() Option {
	return func(r *Resolver) { r.sf = new(singleflight.Group) }
}

// NewResolver creates a Resolver.
func NewResolver(store Store, p Provider, opts ...Option) *Resolver {
	r := &Resolver{
		store:      store,
		provider:   p,
		log:        discardLog{},
		logger:     slog.Default(),
		now:        time.Now,
		tracer:     otel.Tracer("veicheck/lookup"),
		homeUF:     DefaultHomeUF,
		defaultTTL: domain.DefaultTTLDays,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve returns the record for q, served from the store when a record
// younger than ttlDays exists and fetched from the provider otherwise.
// ttlDays <= 0 selects the configured default. Provider failures are
// returned as *provider.LookupError without falling back to stale data.
func (r *Resolver) Resolve(ctx context.Context, q domain.Query, ttlDays int) (Result, error) {
	q, err := domain.NormalizeQuery(q)
	if err != nil {
		return Result{}, err
	}
	if ttlDays <= 0 {
		ttlDays = r.defaultTTL
	}

	ctx, span := r.tracer.Start(ctx, "lookup.Resolve", trace.WithAttributes(
		attribute.String("vehicle.kind", string(q.Kind)),
		attribute.String("vehicle.uf", q.UF),
	))
	defer span.End()

	var res Result
	if r.sf == nil {
		res, err = r.resolve(ctx, q, ttlDays)
	} else {
		res, err = r.resolveShared(ctx, q, ttlDays)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(attribute.Bool("lookup.from_cache", res.FromCache))
	return res, nil
}

// resolveShared joins or starts the in-flight resolve for q. The shared call
// ignores the caller's cancellation; each caller stops waiting when its own
// context ends.
func (r *Resolver) resolveShared(ctx context.Context, q domain.Query, ttlDays int) (Result, error) {
	key := fmt.Sprintf("%s|%s|%d", q.Key(), q.Variant, ttlDays)
	shared := context.WithoutCancel(ctx)
	ch := r.sf.DoChan(key, func() (any, error) {
		return r.resolve(shared, q, ttlDays)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case out := <-ch:
		res, _ := out.Val.(Result)
		return res, out.Err
	}
}

func (r *Resolver) resolve(ctx context.Context, q domain.Query, ttlDays int) (Result, error) {
	existing, found, err := r.store.FindByIdentifier(ctx, q.Kind, q.Value)
	if err != nil {
		return Result{}, fmt.Errorf("lookup: find %s: %w", q.Key(), err)
	}
	if found && existing.IsFresh(r.now(), domain.TTL(ttlDays)) {
		r.metrics.CacheHit()
		return Result{Record: existing, FromCache: true}, nil
	}
	r.metrics.CacheMiss()

	variant := r.SelectVariant(q)
	start := r.now()
	resp, fetchErr := r.provider.Fetch(ctx, provider.Request{
		Kind: q.Kind, Value: q.Value, Variant: variant, UF: q.UF,
	})
	elapsed := r.now().Sub(start)

	category := provider.CategoryOf(fetchErr)
	r.metrics.ProviderCall(string(variant), string(category), elapsed)
	r.record(ctx, q, variant, resp, fetchErr, start, elapsed)

	if fetchErr != nil {
		r.logger.Warn("provider lookup failed",
			"kind", q.Kind, "variant", variant, "category", category, "err", fetchErr)
		return Result{}, fetchErr
	}

	rec := Normalize(resp.Data, q, variant, r.now())
	if found {
		rec.ID = existing.ID
	}
	saved, err := r.store.Upsert(ctx, rec)
	if err != nil {
		return Result{}, fmt.Errorf("lookup: upsert %s: %w", q.Key(), err)
	}
	return Result{Record: saved, FromCache: false}, nil
}

// SelectVariant picks the provider endpoint for an already normalized
// query: an explicit variant wins, then the home state's registry, then the
// national registry.
func (r *Resolver) SelectVariant(q domain.Query) domain.Variant {
	switch {
	case q.Variant != "":
		return q.Variant
	case q.UF != "" && q.UF == r.homeUF:
		return domain.VariantState
	default:
		return domain.VariantNational
	}
}

func (r *Resolver) record(ctx context.Context, q domain.Query, variant domain.Variant, resp *provider.Response, fetchErr error, at time.Time, elapsed time.Duration) {
	e := Entry{
		ID:        uuid.NewString(),
		At:        at,
		Kind:      q.Kind,
		Value:     q.Value,
		UF:        q.UF,
		Variant:   variant,
		Success:   fetchErr == nil,
		Category:  provider.CategoryOf(fetchErr),
		ElapsedMS: elapsed.Milliseconds(),
	}
	if resp != nil {
		e.Code = resp.Code
		e.Message = resp.Message
		e.RawResponse = string(resp.Raw)
	}
	if fetchErr != nil {
		if le, ok := provider.AsLookupError(fetchErr); ok && le.Code != 0 {
			e.Code = le.Code
		}
		e.Message = fetchErr.Error()
	}

	if err := r.log.Append(context.WithoutCancel(ctx), e); err != nil {
		r.metrics.RequestLogFailed()
		r.logger.Error("request log append failed", "entry", e.ID, "err", err)
	}
}
