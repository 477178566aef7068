package reqlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veicheck/veicheck/engine/domain"
	"github.com/veicheck/veicheck/engine/lookup"
	"github.com/veicheck/veicheck/engine/provider"
)

// Postgres stores entries in the provider_requests table. Rows are only
// ever inserted.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool. Call EnsureSchema before using it.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the provider_requests table if it is missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ddl := `
CREATE TABLE IF NOT EXISTS provider_requests (
  id TEXT PRIMARY KEY,
  at TIMESTAMPTZ NOT NULL,
  kind TEXT NOT NULL,
  value TEXT NOT NULL,
  uf TEXT NOT NULL DEFAULT '',
  variant TEXT NOT NULL,
  code INTEGER NOT NULL,
  success BOOLEAN NOT NULL,
  category TEXT NOT NULL DEFAULT '',
  message TEXT NOT NULL DEFAULT '',
  elapsed_ms BIGINT NOT NULL,
  raw_response TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS provider_requests_at_idx ON provider_requests (at DESC);`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create provider_requests table: %w", err)
	}
	return nil
}

// Append inserts e. Re-delivered entries with a known ID are ignored.
func (p *Postgres) Append(ctx context.Context, e lookup.Entry) error {
	const query = `
INSERT INTO provider_requests (id, at, kind, value, uf, variant, code, success, category, message, elapsed_ms, raw_response)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO NOTHING;`
	_, err := p.pool.Exec(ctx, query,
		e.ID, e.At.UTC(), string(e.Kind), e.Value, e.UF, string(e.Variant),
		e.Code, e.Success, string(e.Category), pgText(e.Message), e.ElapsedMS, pgText(e.RawResponse),
	)
	if err != nil {
		return fmt.Errorf("insert provider request %s: %w", e.ID, err)
	}
	return nil
}

// pgText makes provider text storable in a TEXT column, which rejects NUL
// bytes and invalid UTF-8.
func pgText(s string) string {
	return strings.ReplaceAll(strings.ToValidUTF8(s, "\uFFFD"), "\x00", "")
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]lookup.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
SELECT id, at, kind, value, uf, variant, code, success, category, message, elapsed_ms, raw_response
FROM provider_requests ORDER BY at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query provider requests: %w", err)
	}
	return pgx.CollectRows(rows, scanEntry)
}

func scanEntry(row pgx.CollectableRow) (lookup.Entry, error) {
	var (
		e                       lookup.Entry
		kind, variant, category string
		at                      time.Time
	)
	err := row.Scan(&e.ID, &at, &kind, &e.Value, &e.UF, &variant, &e.Code, &e.Success,
		&category, &e.Message, &e.ElapsedMS, &e.RawResponse)
	e.At = at
	e.Kind = domain.Kind(kind)
	e.Variant = domain.Variant(variant)
	e.Category = provider.Category(category)
	return e, err
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// NewDB opens a pgx pool and verifies connectivity.
func NewDB(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}
