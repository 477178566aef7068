package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/veicheck/veicheck/engine/domain"
)

// KV is the subset of redis.Cmdable used by Redis.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	MSet(ctx context.Context, values ...any) *redis.StatusCmd
}

// Redis stores records as JSON under {prefix}:vehicle:{id} with one
// {prefix}:idx:{kind}:{value} pointer per identifier.
type Redis struct {
	kv     KV
	prefix string
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithRedisPrefix sets the key prefix (default "veicheck").
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *Redis) { s.prefix = strings.Trim(prefix, ":") }
}

// NewRedis creates a Redis store.
func NewRedis(kv KV, opts ...RedisOption) *Redis {
	s := &Redis{kv: kv, prefix: "veicheck"}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Redis) recordKey(id string) string { return s.prefix + ":vehicle:" + id }

func (s *Redis) indexKey(kind domain.Kind, value string) string {
	return s.prefix + ":idx:" + string(kind) + ":" + value
}

func (s *Redis) FindByIdentifier(ctx context.Context, kind domain.Kind, value string) (domain.Record, bool, error) {
	id, err := s.kv.Get(ctx, s.indexKey(kind, value)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Record{}, false, nil
	}
	if err != nil {
		return domain.Record{}, false, fmt.Errorf("store: redis index %s: %w", kind, err)
	}

	raw, err := s.kv.Get(ctx, s.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Record{}, false, nil
	}
	if err != nil {
		return domain.Record{}, false, fmt.Errorf("store: redis get %s: %w", id, err)
	}

	var rec domain.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.Record{}, false, fmt.Errorf("store: redis decode %s: %w", id, err)
	}
	// Pointers left behind by an identifier change.
	if rec.Identifier(kind) != value {
		return domain.Record{}, false, nil
	}
	return rec, true, nil
}

func (s *Redis) Upsert(ctx context.Context, rec domain.Record) (domain.Record, error) {
	rec, err := assignID(ctx, s, rec)
	if err != nil {
		return domain.Record{}, err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return domain.Record{}, fmt.Errorf("store: redis encode: %w", err)
	}

	pairs := []any{s.recordKey(rec.ID), raw}
	for k, v := range rec.Identifiers() {
		pairs = append(pairs, s.indexKey(k, v), rec.ID)
	}
	if err := s.kv.MSet(ctx, pairs...).Err(); err != nil {
		return domain.Record{}, fmt.Errorf("store: redis mset %s: %w", rec.ID, err)
	}
	return rec, nil
}
