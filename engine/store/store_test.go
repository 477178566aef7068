package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/redis/go-redis/v9"

	"github.com/veicheck/veicheck/engine/domain"
	"github.com/veicheck/veicheck/engine/lookup"
	"github.com/veicheck/veicheck/pkg/repo"
)

var (
	_ lookup.Store = (*Memory)(nil)
	_ lookup.Store = (*Neo4j)(nil)
	_ lookup.Store = (*Redis)(nil)
)

var refreshed = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

func sampleRecord() domain.Record {
	return domain.Record{
		Plate: "ABC1D23", Chassis: "9BWHE21JX24060831", UF: "SP",
		Make: "VW", Model: "GOL", ModelYear: 2016,
		Extra:  map[string]any{"situacao": "ok"},
		Source: domain.VariantState, RefreshedAt: refreshed,
	}
}

// backendContract runs the behaviour every backend must share.
func backendContract(t *testing.T, s lookup.Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.FindByIdentifier(ctx, domain.KindPlate, "ABC1D23"); err != nil || ok {
		t.Fatalf("empty store lookup: ok=%v err=%v", ok, err)
	}

	saved, err := s.Upsert(ctx, sampleRecord())
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("upsert should assign an ID")
	}

	for kind, value := range map[domain.Kind]string{domain.KindPlate: "ABC1D23", domain.KindChassis: "9BWHE21JX24060831"} {
		got, ok, err := s.FindByIdentifier(ctx, kind, value)
		if err != nil || !ok {
			t.Fatalf("find by %s: ok=%v err=%v", kind, ok, err)
		}
		if got.ID != saved.ID || got.Make != "VW" || !got.RefreshedAt.Equal(refreshed) {
			t.Fatalf("find by %s: %+v", kind, got)
		}
	}

	// Same chassis, new plate and no ID: replaces the record in place.
	next := sampleRecord()
	next.Plate = "XYZ9876"
	next.Make = "VOLKSWAGEN"
	next.Extra = nil
	again, err := s.Upsert(ctx, next)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if again.ID != saved.ID {
		t.Fatalf("ID not reused: %s vs %s", again.ID, saved.ID)
	}
	got, ok, err := s.FindByIdentifier(ctx, domain.KindPlate, "XYZ9876")
	if err != nil || !ok || got.Make != "VOLKSWAGEN" || len(got.Extra) != 0 {
		t.Fatalf("replacement not visible: %+v ok=%v err=%v", got, ok, err)
	}
	if _, ok, _ := s.FindByIdentifier(ctx, domain.KindPlate, "ABC1D23"); ok {
		t.Fatal("old plate should no longer resolve")
	}

	if _, err := s.Upsert(ctx, domain.Record{Make: "X"}); !errors.Is(err, ErrNoIdentifier) {
		t.Fatalf("expected ErrNoIdentifier, got %v", err)
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	backendContract(t, m)
	if m.Len() != 1 {
		t.Fatalf("expected 1 record, got %d", m.Len())
	}
}

func TestMemory_ReturnsCopies(t *testing.T) {
	m := NewMemory()
	saved, _ := m.Upsert(context.Background(), sampleRecord())
	saved.Extra["situacao"] = "changed"

	got, _, _ := m.FindByIdentifier(context.Background(), domain.KindPlate, "ABC1D23")
	if got.Extra["situacao"] != "ok" {
		t.Fatal("caller mutation leaked into the store")
	}
}

// ── redis ──

type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newFakeKV() *fakeKV { return &fakeKV{data: map[string]string{}} }

func (f *fakeKV) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeKV) MSet(_ context.Context, values ...any) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	for i := 0; i+1 < len(values); i += 2 {
		var v string
		switch x := values[i+1].(type) {
		case []byte:
			v = string(x)
		case string:
			v = x
		}
		f.data[values[i].(string)] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func TestRedis(t *testing.T) {
	backendContract(t, NewRedis(newFakeKV()))
}

func TestRedis_KeyLayout(t *testing.T) {
	kv := newFakeKV()
	s := NewRedis(kv, WithRedisPrefix("test:"))
	saved, err := s.Upsert(context.Background(), sampleRecord())
	if err != nil {
		t.Fatal(err)
	}
	if kv.data["test:idx:plate:ABC1D23"] != saved.ID {
		t.Fatalf("index key missing: %+v", kv.data)
	}
	var rec domain.Record
	if err := json.Unmarshal([]byte(kv.data["test:vehicle:"+saved.ID]), &rec); err != nil || rec.Chassis != "9BWHE21JX24060831" {
		t.Fatalf("record key: %+v %v", rec, err)
	}
}

func TestRedis_ErrorsWrapped(t *testing.T) {
	kv := newFakeKV()
	kv.err = errors.New("connection reset")
	_, _, err := NewRedis(kv).FindByIdentifier(context.Background(), domain.KindPlate, "ABC1D23")
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

// ── neo4j ──

// graphRunner is an in-memory stand-in for a Neo4j session that understands
// the statements issued by repo.Neo4jRepo.
type graphRunner struct {
	mu    sync.Mutex
	nodes map[string]map[string]any
}

type rows struct {
	recs []*neo4j.Record
	i    int
}

func (r *rows) Next(context.Context) bool {
	if r.i < len(r.recs) {
		r.i++
		return true
	}
	return false
}

func (r *rows) Record() *neo4j.Record { return r.recs[r.i-1] }

func nodeRow(props map[string]any) *neo4j.Record {
	return &neo4j.Record{Keys: []string{"n"}, Values: []any{dbtype.Node{Labels: []string{"Vehicle"}, Props: props}}}
}

func (g *graphRunner) Run(_ context.Context, cypher string, params map[string]any) (repo.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case strings.HasPrefix(cypher, "MERGE"):
		props := params["props"].(map[string]any)
		g.nodes[params["id"].(string)] = props
		return &rows{recs: []*neo4j.Record{nodeRow(props)}}, nil
	case strings.Contains(cypher, "WHERE n."):
		prop := cypher[strings.Index(cypher, "WHERE n.")+len("WHERE n."):]
		prop = prop[:strings.Index(prop, " ")]
		for _, n := range g.nodes {
			if n[prop] == params["value"] && n[prop] != "" {
				return &rows{recs: []*neo4j.Record{nodeRow(n)}}, nil
			}
		}
	}
	return &rows{}, nil
}

func (g *graphRunner) Close(context.Context) error { return nil }

func newTestNeo4j() *Neo4j {
	g := &graphRunner{nodes: map[string]map[string]any{}}
	return NewNeo4j(nil, repo.WithSessionFactory[domain.Record, string](func(context.Context) repo.Runner { return g }))
}

func TestNeo4j(t *testing.T) {
	backendContract(t, newTestNeo4j())
}

func TestNeo4j_UnknownKind(t *testing.T) {
	if _, _, err := newTestNeo4j().FindByIdentifier(context.Background(), "boat", "x"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestRecordProps_RoundTripExtra(t *testing.T) {
	in := sampleRecord()
	in.ID = "r1"
	props := recordToMap(in)
	if _, ok := props["extra"].(string); !ok {
		t.Fatalf("extra should be stored as JSON text: %T", props["extra"])
	}
	out, err := recordFromProps(props)
	if err != nil {
		t.Fatal(err)
	}
	if out.Extra["situacao"] != "ok" || out.ModelYear != 2016 || out.ID != "r1" {
		t.Fatalf("unexpected record: %+v", out)
	}
}
