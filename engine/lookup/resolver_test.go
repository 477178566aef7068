package lookup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/veicheck/veicheck/engine/domain"
	"github.com/veicheck/veicheck/engine/provider"
)

// ── fakes ──

type fakeStore struct {
	mu      sync.Mutex
	records map[string]domain.Record
	finds   int
	upserts int
	findErr error
}

func newFakeStore() *fakeStore { return &fakeStore{records: map[string]domain.Record{}} }

func (s *fakeStore) FindByIdentifier(_ context.Context, kind domain.Kind, value string) (domain.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++
	if s.findErr != nil {
		return domain.Record{}, false, s.findErr
	}
	for _, r := range s.records {
		if r.Identifier(kind) == value {
			return r, true, nil
		}
	}
	return domain.Record{}, false, nil
}

func (s *fakeStore) Upsert(_ context.Context, rec domain.Record) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if rec.ID == "" {
		rec.ID = "rec-" + rec.Chassis + rec.Plate + rec.Renavam
	}
	s.records[rec.ID] = rec
	return rec, nil
}

type fakeProvider struct {
	calls atomic.Int32
	last  provider.Request
	resp  *provider.Response
	err   error
	delay time.Duration
}

func (p *fakeProvider) Fetch(ctx context.Context, req provider.Request) (*provider.Response, error) {
	p.calls.Add(1)
	p.last = req
	if p.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.delay):
		}
	}
	return p.resp, p.err
}

type memLog struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

func (l *memLog) Append(_ context.Context, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return l.err
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func okResponse() *provider.Response {
	return &provider.Response{
		Code: 200,
		Data: map[string]any{
			"placa": "ABC1D23", "chassi": "9BWHE21JX24060831", "marca": "VW",
			"modelo": "GOL 1.0", "ano_modelo": float64(2016), "situacao": "em circulacao",
		},
		Raw: []byte(`{"code":200}`),
	}
}

func newResolver(s Store, p Provider, l RequestLog, opts ...Option) *Resolver {
	opts = append([]Option{WithClock(func() time.Time { return now }), WithRequestLog(l)}, opts...)
	return NewResolver(s, p, opts...)
}

// ── tests ──

func TestResolve_FreshHitSkipsProvider(t *testing.T) {
	store := newFakeStore()
	store.records["r1"] = domain.Record{ID: "r1", Plate: "ABC1D23", Make: "VW", RefreshedAt: now.Add(-10 * 24 * time.Hour)}
	p := &fakeProvider{resp: okResponse()}
	log := &memLog{}

	res, err := newResolver(store, p, log).Resolve(context.Background(), domain.Query{Kind: "plate", Value: "abc-1d23"}, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.FromCache || res.Record.ID != "r1" {
		t.Fatalf("expected cached r1, got %+v", res)
	}
	if p.calls.Load() != 0 {
		t.Fatalf("provider called %d times", p.calls.Load())
	}
	if len(log.entries) != 0 {
		t.Fatal("cache hits are not provider attempts")
	}
}

func TestResolve_StaleRecordRefetches(t *testing.T) {
	store := newFakeStore()
	store.records["r1"] = domain.Record{ID: "r1", Plate: "ABC1D23", RefreshedAt: now.Add(-40 * 24 * time.Hour)}
	p := &fakeProvider{resp: okResponse()}

	res, err := newResolver(store, p, &memLog{}).Resolve(context.Background(), domain.Query{Kind: "plate", Value: "ABC1D23"}, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.FromCache {
		t.Fatal("stale record must not be served from cache")
	}
	if p.calls.Load() != 1 {
		t.Fatalf("expected 1 provider call, got %d", p.calls.Load())
	}
	if res.Record.ID != "r1" || !res.Record.RefreshedAt.Equal(now) || res.Record.Make != "Volkswagen" {
		t.Fatalf("record should be refreshed in place: %+v", res.Record)
	}
}

func TestResolve_ZeroTTLUsesDefault(t *testing.T) {
	store := newFakeStore()
	store.records["r1"] = domain.Record{ID: "r1", Plate: "ABC1D23", RefreshedAt: now.Add(-20 * 24 * time.Hour)}
	p := &fakeProvider{resp: okResponse()}

	res, err := newResolver(store, p, &memLog{}).Resolve(context.Background(), domain.Query{Kind: "plate", Value: "ABC1D23"}, 0)
	if err != nil || !res.FromCache {
		t.Fatalf("20-day record is fresh under the 30-day default: %+v %v", res, err)
	}

	res, err = newResolver(store, p, &memLog{}, WithDefaultTTL(7)).Resolve(context.Background(), domain.Query{Kind: "plate", Value: "ABC1D23"}, -1)
	if err != nil || res.FromCache {
		t.Fatalf("configured 7-day default should force refresh: %+v %v", res, err)
	}
}

func TestResolve_HugeTTLServesFromCache(t *testing.T) {
	store := newFakeStore()
	store.records["r1"] = domain.Record{ID: "r1", Plate: "ABC1D23", RefreshedAt: now.Add(-time.Hour)}
	p := &fakeProvider{resp: okResponse()}

	res, err := newResolver(store, p, &memLog{}).Resolve(context.Background(), domain.Query{Kind: "plate", Value: "ABC1D23"}, 1_000_000)
	if err != nil || !res.FromCache {
		t.Fatalf("fresh record should be served from cache: %+v %v", res, err)
	}
	if p.calls.Load() != 0 {
		t.Fatalf("provider must not be called, got %d calls", p.calls.Load())
	}
}

func TestResolve_MissThenHitIsIdempotent(t *testing.T) {
	store := newFakeStore()
	p := &fakeProvider{resp: okResponse()}
	r := newResolver(store, p, &memLog{})
	q := domain.Query{Kind: "chassis", Value: "9BWHE21JX24060831"}

	first, err := r.Resolve(context.Background(), q, 30)
	if err != nil || first.FromCache {
		t.Fatalf("first resolve: %+v %v", first, err)
	}
	second, err := r.Resolve(context.Background(), q, 30)
	if err != nil || !second.FromCache {
		t.Fatalf("second resolve: %+v %v", second, err)
	}
	if second.Record.ID != first.Record.ID {
		t.Fatalf("ids differ: %s vs %s", first.Record.ID, second.Record.ID)
	}
	if p.calls.Load() != 1 || store.upserts != 1 {
		t.Fatalf("calls=%d upserts=%d", p.calls.Load(), store.upserts)
	}
}

func TestResolve_ProviderErrorPassesThrough(t *testing.T) {
	store := newFakeStore()
	store.records["r1"] = domain.Record{ID: "r1", Plate: "ABC1D23", RefreshedAt: now.Add(-90 * 24 * time.Hour)}
	perr := provider.NewLookupError(615, "manutencao", nil)
	p := &fakeProvider{resp: &provider.Response{Code: 615, Raw: []byte(`{"code":615}`)}, err: perr}
	log := &memLog{}

	_, err := newResolver(store, p, log).Resolve(context.Background(), domain.Query{Kind: "plate", Value: "ABC1D23"}, 30)
	if err != perr {
		t.Fatalf("expected the provider error verbatim, got %v", err)
	}
	if !errors.Is(err, provider.ErrUnavailable) {
		t.Fatal("expected ErrUnavailable")
	}
	if store.upserts != 0 {
		t.Fatal("failed lookup must not write")
	}
	if len(log.entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(log.entries))
	}
	e := log.entries[0]
	if e.Success || e.Code != 615 || e.Category != provider.CategoryUnavailable || e.RawResponse != `{"code":615}` {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestResolve_InvalidQueryDoesNoIO(t *testing.T) {
	store := newFakeStore()
	p := &fakeProvider{resp: okResponse()}

	for _, q := range []domain.Query{
		{Kind: "plate", Value: "AB"},
		{Kind: "boat", Value: "ABC1D23"},
		{Kind: "plate", Value: "ABC1D23", UF: "XX"},
	} {
		_, err := newResolver(store, p, &memLog{}).Resolve(context.Background(), q, 30)
		if !errors.Is(err, domain.ErrInvalidQuery) {
			t.Errorf("%+v: expected ErrInvalidQuery, got %v", q, err)
		}
	}
	if store.finds != 0 || p.calls.Load() != 0 {
		t.Fatalf("finds=%d calls=%d", store.finds, p.calls.Load())
	}
}

func TestResolve_StoreErrorWrapped(t *testing.T) {
	store := newFakeStore()
	boom := errors.New("boom")
	store.findErr = boom
	p := &fakeProvider{resp: okResponse()}

	_, err := newResolver(store, p, &memLog{}).Resolve(context.Background(), domain.Query{Kind: "plate", Value: "ABC1D23"}, 30)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if p.calls.Load() != 0 {
		t.Fatal("provider must not be called when the store fails")
	}
}

func TestResolve_LogsSuccessfulAttempt(t *testing.T) {
	log := &memLog{}
	p := &fakeProvider{resp: okResponse()}

	_, err := newResolver(newFakeStore(), p, log).Resolve(context.Background(), domain.Query{Kind: "plate", Value: "ABC1D23", UF: "sp"}, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(log.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(log.entries))
	}
	e := log.entries[0]
	if !e.Success || e.Code != 200 || e.ID == "" || e.UF != "SP" || e.Variant != domain.VariantState {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.Value != "ABC1D23" || e.Kind != domain.KindPlate || !e.At.Equal(now) {
		t.Fatalf("unexpected entry identity: %+v", e)
	}
}

func TestResolve_LogFailureDoesNotChangeOutcome(t *testing.T) {
	log := &memLog{err: errors.New("disk full")}
	res, err := newResolver(newFakeStore(), &fakeProvider{resp: okResponse()}, log).
		Resolve(context.Background(), domain.Query{Kind: "plate", Value: "ABC1D23"}, 30)
	if err != nil || res.Record.Make != "Volkswagen" {
		t.Fatalf("log failure leaked: %+v %v", res, err)
	}
}

func TestSelectVariant(t *testing.T) {
	r := NewResolver(nil, nil)
	tests := []struct {
		q    domain.Query
		want domain.Variant
	}{
		{domain.Query{UF: "SP"}, domain.VariantState},
		{domain.Query{UF: "RJ"}, domain.VariantNational},
		{domain.Query{}, domain.VariantNational},
		{domain.Query{UF: "SP", Variant: domain.VariantNational}, domain.VariantNational},
		{domain.Query{UF: "MG", Variant: domain.VariantState}, domain.VariantState},
	}
	for _, tt := range tests {
		if got := r.SelectVariant(tt.q); got != tt.want {
			t.Errorf("SelectVariant(%+v) = %s, want %s", tt.q, got, tt.want)
		}
	}

	mg := NewResolver(nil, nil, WithHomeUF("MG"))
	if got := mg.SelectVariant(domain.Query{UF: "MG"}); got != domain.VariantState {
		t.Errorf("home UF MG: got %s", got)
	}
}

func TestResolve_SingleFlightCollapsesConcurrentMisses(t *testing.T) {
	p := &fakeProvider{resp: okResponse(), delay: 50 * time.Millisecond}
	r := newResolver(newFakeStore(), p, &memLog{}, WithSingleFlight())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Resolve(context.Background(), domain.Query{Kind: "plate", Value: "ABC1D23"}, 30); err != nil {
				t.Errorf("resolve: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := p.calls.Load(); n != 1 {
		t.Fatalf("expected 1 provider call with single-flight, got %d", n)
	}
}

func TestResolve_SingleFlightSurvivesFirstCallerCancel(t *testing.T) {
	p := &fakeProvider{resp: okResponse(), delay: 100 * time.Millisecond}
	r := newResolver(newFakeStore(), p, &memLog{}, WithSingleFlight())
	q := domain.Query{Kind: "plate", Value: "ABC1D23"}

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctx, q, 30)
		firstErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	second := make(chan error, 1)
	go func() {
		res, err := r.Resolve(context.Background(), q, 30)
		if err == nil && res.Record.Plate != "ABC1D23" {
			err = errors.New("unexpected record")
		}
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller: expected context.Canceled, got %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("waiting caller should get the shared result, got %v", err)
	}
	if n := p.calls.Load(); n != 1 {
		t.Fatalf("expected 1 provider call, got %d", n)
	}
}
