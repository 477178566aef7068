package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/veicheck/veicheck/engine/domain"
	"github.com/veicheck/veicheck/pkg/repo"
)

const vehicleLabel = "Vehicle"

// Neo4j stores each record as a :Vehicle node.
type Neo4j struct {
	vehicles *repo.Neo4jRepo[domain.Record, string]
}

// NewNeo4j creates a Neo4j store on driver.
func NewNeo4j(driver neo4j.DriverWithContext, opts ...repo.Neo4jOption[domain.Record, string]) *Neo4j {
	return &Neo4j{
		vehicles: repo.NewNeo4jRepo[domain.Record, string](driver, vehicleLabel, recordToMap, recordFromNeo4j, opts...),
	}
}

// EnsureIndexes creates the identifier indexes.
func (s *Neo4j) EnsureIndexes(ctx context.Context) error {
	return s.vehicles.EnsureIndexes(ctx, string(domain.KindChassis), string(domain.KindPlate), string(domain.KindRenavam))
}

func (s *Neo4j) FindByIdentifier(ctx context.Context, kind domain.Kind, value string) (domain.Record, bool, error) {
	if !domain.ValidKinds[kind] {
		return domain.Record{}, false, fmt.Errorf("store: unknown kind %q", kind)
	}
	rec, ok, err := s.vehicles.FindBy(ctx, string(kind), value)
	if err != nil {
		return domain.Record{}, false, fmt.Errorf("store: neo4j find %s: %w", kind, err)
	}
	return rec, ok, nil
}

func (s *Neo4j) Upsert(ctx context.Context, rec domain.Record) (domain.Record, error) {
	rec, err := assignID(ctx, s, rec)
	if err != nil {
		return domain.Record{}, err
	}
	saved, err := s.vehicles.Upsert(ctx, rec.ID, rec)
	if err != nil {
		return domain.Record{}, fmt.Errorf("store: neo4j upsert %s: %w", rec.ID, err)
	}
	return saved, nil
}

func recordToMap(r domain.Record) map[string]any {
	m := map[string]any{
		"id":               r.ID,
		"plate":            r.Plate,
		"chassis":          r.Chassis,
		"renavam":          r.Renavam,
		"uf":               r.UF,
		"make":             r.Make,
		"model":            r.Model,
		"model_year":       int64(r.ModelYear),
		"manufacture_year": int64(r.ManufactureYear),
		"color":            r.Color,
		"fuel_type":        r.FuelType,
		"category":         r.Category,
		"source":           string(r.Source),
		"refreshed_at":     r.RefreshedAt.UTC(),
	}
	if len(r.Extra) > 0 {
		if b, err := json.Marshal(r.Extra); err == nil {
			m["extra"] = string(b)
		}
	}
	return m
}

func recordFromNeo4j(rec *neo4j.Record) (domain.Record, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return domain.Record{}, err
	}
	return recordFromProps(node.Props)
}

func recordFromProps(props map[string]any) (domain.Record, error) {
	r := domain.Record{
		ID:              strProp(props, "id"),
		Plate:           strProp(props, "plate"),
		Chassis:         strProp(props, "chassis"),
		Renavam:         strProp(props, "renavam"),
		UF:              strProp(props, "uf"),
		Make:            strProp(props, "make"),
		Model:           strProp(props, "model"),
		ModelYear:       intProp(props, "model_year"),
		ManufactureYear: intProp(props, "manufacture_year"),
		Color:           strProp(props, "color"),
		FuelType:        strProp(props, "fuel_type"),
		Category:        strProp(props, "category"),
		Source:          domain.Variant(strProp(props, "source")),
	}
	if t, ok := props["refreshed_at"].(time.Time); ok {
		r.RefreshedAt = t
	}
	if raw := strProp(props, "extra"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &r.Extra); err != nil {
			return domain.Record{}, fmt.Errorf("decode extra: %w", err)
		}
	}
	return r, nil
}

func strProp(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

func intProp(props map[string]any, key string) int {
	switch v := props[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}
