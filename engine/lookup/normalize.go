package lookup

import (
	"strconv"
	"strings"
	"time"

	"github.com/veicheck/veicheck/engine/domain"
	"github.com/veicheck/veicheck/pkg/vehiclenlp"
)

// field is one logical Record attribute and the provider keys that may
// carry it, in priority order. Dotted keys address nested objects.
type field struct {
	name string
	keys []string
	set  func(*domain.Record, string)
}

// fieldTable maps the provider's unstable schemas onto Record. The first
// non-empty candidate wins.
var fieldTable = []field{
	{"plate", []string{"placa", "placa_veiculo", "placaVeiculo", "veiculo.placa", "plate"},
		func(r *domain.Record, v string) { r.Plate = domain.CanonicalIdentifier(domain.KindPlate, v) }},
	{"chassis", []string{"chassi", "chassi_veiculo", "numero_chassi", "veiculo.chassi", "chassis", "vin"},
		func(r *domain.Record, v string) { r.Chassis = domain.CanonicalIdentifier(domain.KindChassis, v) }},
	{"renavam", []string{"renavam", "codigo_renavam", "codigoRenavam", "veiculo.renavam"},
		func(r *domain.Record, v string) { r.Renavam = domain.CanonicalIdentifier(domain.KindRenavam, v) }},
	{"uf", []string{"uf", "uf_jurisdicao", "ufJurisdicao", "uf_placa", "estado"},
		func(r *domain.Record, v string) { r.UF = strings.ToUpper(v) }},
	{"make", []string{"marca", "fabricante", "veiculo.marca", "make"},
		func(r *domain.Record, v string) { r.Make = v }},
	{"model", []string{"modelo", "descricao_modelo", "marca_modelo", "marcaModelo", "veiculo.modelo", "model"},
		func(r *domain.Record, v string) { r.Model = v }},
	{"model_year", []string{"ano_modelo", "anoModelo", "veiculo.ano_modelo", "model_year"},
		func(r *domain.Record, v string) { r.ModelYear = parseYear(v) }},
	{"manufacture_year", []string{"ano_fabricacao", "anoFabricacao", "veiculo.ano_fabricacao", "manufacture_year"},
		func(r *domain.Record, v string) { r.ManufactureYear = parseYear(v) }},
	{"color", []string{"cor", "cor_veiculo", "corVeiculo", "color"},
		func(r *domain.Record, v string) { r.Color = v }},
	{"fuel_type", []string{"combustivel", "tipo_combustivel", "tipoCombustivel", "fuel_type"},
		func(r *domain.Record, v string) { r.FuelType = v }},
	{"category", []string{"categoria", "especie", "tipo_veiculo", "tipoVeiculo", "category"},
		func(r *domain.Record, v string) { r.Category = v }},
}

// Normalize maps a provider payload onto a Record. Identifiers missing from
// the payload are taken from the query; provider fields not consumed by the
// table are kept in Extra. Makes are reported under their canonical name.
func Normalize(data map[string]any, q domain.Query, variant domain.Variant, refreshedAt time.Time) domain.Record {
	rec := domain.Record{Source: variant, RefreshedAt: refreshedAt}
	consumed := make(map[string]bool)

	for _, f := range fieldTable {
		for _, key := range f.keys {
			v, ok := lookupString(data, key)
			if !ok {
				continue
			}
			f.set(&rec, v)
			if !strings.Contains(key, ".") {
				consumed[key] = true
			}
			break
		}
	}

	// Registry descriptions come as "MAKE/MODEL". A slash inside a model
	// name ("CS/CE") is kept when the make is known from its own field.
	imported := false
	if i := strings.Index(rec.Model, "/"); i > 0 {
		d := vehiclenlp.Parse(rec.Model)
		if rec.Make == "" || d.Imported || vehiclenlp.KnownMake(rec.Model[:i]) {
			rec.Model = d.Model
			if rec.Make == "" {
				rec.Make = d.Make
			}
			imported = d.Imported
		}
	}
	rec.Make = vehiclenlp.CanonicalMake(rec.Make)

	switch q.Kind {
	case domain.KindChassis:
		if rec.Chassis == "" {
			rec.Chassis = q.Value
		}
	case domain.KindPlate:
		if rec.Plate == "" {
			rec.Plate = q.Value
		}
	case domain.KindRenavam:
		if rec.Renavam == "" {
			rec.Renavam = q.Value
		}
	}
	if rec.UF == "" {
		rec.UF = q.UF
	}

	for k, v := range data {
		if consumed[k] {
			continue
		}
		if rec.Extra == nil {
			rec.Extra = make(map[string]any)
		}
		rec.Extra[k] = v
	}
	if imported {
		if rec.Extra == nil {
			rec.Extra = make(map[string]any)
		}
		rec.Extra["imported"] = true
	}
	return rec
}

// lookupString resolves a possibly dotted key and renders scalars as text.
func lookupString(data map[string]any, key string) (string, bool) {
	var cur any = data
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		if cur, ok = m[part]; !ok {
			return "", false
		}
	}

	var s string
	switch v := cur.(type) {
	case string:
		s = strings.TrimSpace(v)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	default:
		return "", false
	}
	return s, s != ""
}

// parseYear reads the leading four digits of v, e.g. "2016" or "2016/2017".
func parseYear(v string) int {
	digits := 0
	for digits < len(v) && digits < 4 && v[digits] >= '0' && v[digits] <= '9' {
		digits++
	}
	if digits != 4 {
		return 0
	}
	y, _ := strconv.Atoi(v[:digits])
	return y
}
