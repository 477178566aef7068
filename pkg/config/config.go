// Package config loads service configuration from the environment, with an
// optional config file named by CONFIG_FILE. Environment variables win over
// the file; built-in defaults apply when neither sets a key.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/veicheck/veicheck/engine/domain"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendNeo4j  = "neo4j"
	BackendRedis  = "redis"
)

// Config is the full service configuration.
type Config struct {
	Port       string
	GRPCPort   string
	CORSOrigin string

	CacheTTLDays int
	HomeUF       string
	SingleFlight bool

	StoreBackend string
	Neo4jURL     string
	Neo4jUser    string
	Neo4jPass    string
	RedisAddr    string
	RedisPass    string
	RedisDB      int

	ProviderBaseURL string
	ProviderToken   string
	ProviderTimeout time.Duration
	ProviderRPS     float64
	ProviderBurst   int

	BreakerThreshold int
	BreakerTimeout   time.Duration

	NATSURL          string
	NATSSubject      string
	DatabaseURL      string
	RequestLogBuffer int
}

var defaults = map[string]any{
	"PORT":               "8080",
	"GRPC_PORT":          "9090",
	"CORS_ORIGIN":        "*",
	"CACHE_TTL_DAYS":     domain.DefaultTTLDays,
	"HOME_UF":            "SP",
	"SINGLE_FLIGHT":      false,
	"STORE_BACKEND":      BackendMemory,
	"NEO4J_URL":          "neo4j://localhost:7687",
	"NEO4J_USER":         "neo4j",
	"NEO4J_PASS":         "",
	"REDIS_ADDR":         "localhost:6379",
	"REDIS_PASSWORD":     "",
	"REDIS_DB":           0,
	"PROVIDER_BASE_URL":  "",
	"PROVIDER_TOKEN":     "",
	"PROVIDER_TIMEOUT":   "30s",
	"PROVIDER_RPS":       0.0,
	"PROVIDER_BURST":     1,
	"BREAKER_THRESHOLD":  5,
	"BREAKER_TIMEOUT":    "30s",
	"NATS_URL":           "",
	"NATS_SUBJECT":       "veicheck.requests",
	"DATABASE_URL":       "",
	"REQUEST_LOG_BUFFER": 500,
}

// Load reads the configuration and validates it.
func Load() (Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := Config{
		Port:             v.GetString("PORT"),
		GRPCPort:         v.GetString("GRPC_PORT"),
		CORSOrigin:       v.GetString("CORS_ORIGIN"),
		CacheTTLDays:     v.GetInt("CACHE_TTL_DAYS"),
		HomeUF:           strings.ToUpper(v.GetString("HOME_UF")),
		SingleFlight:     v.GetBool("SINGLE_FLIGHT"),
		StoreBackend:     strings.ToLower(v.GetString("STORE_BACKEND")),
		Neo4jURL:         v.GetString("NEO4J_URL"),
		Neo4jUser:        v.GetString("NEO4J_USER"),
		Neo4jPass:        v.GetString("NEO4J_PASS"),
		RedisAddr:        v.GetString("REDIS_ADDR"),
		RedisPass:        v.GetString("REDIS_PASSWORD"),
		RedisDB:          v.GetInt("REDIS_DB"),
		ProviderBaseURL:  v.GetString("PROVIDER_BASE_URL"),
		ProviderToken:    v.GetString("PROVIDER_TOKEN"),
		ProviderTimeout:  v.GetDuration("PROVIDER_TIMEOUT"),
		ProviderRPS:      v.GetFloat64("PROVIDER_RPS"),
		ProviderBurst:    v.GetInt("PROVIDER_BURST"),
		BreakerThreshold: v.GetInt("BREAKER_THRESHOLD"),
		BreakerTimeout:   v.GetDuration("BREAKER_TIMEOUT"),
		NATSURL:          v.GetString("NATS_URL"),
		NATSSubject:      v.GetString("NATS_SUBJECT"),
		DatabaseURL:      v.GetString("DATABASE_URL"),
		RequestLogBuffer: v.GetInt("REQUEST_LOG_BUFFER"),
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendNeo4j, BackendRedis:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if _, ok := domain.FederativeUnits[c.HomeUF]; !ok {
		return fmt.Errorf("config: unknown HOME_UF %q", c.HomeUF)
	}
	if c.CacheTTLDays <= 0 {
		return fmt.Errorf("config: CACHE_TTL_DAYS must be positive, got %d", c.CacheTTLDays)
	}
	if c.ProviderRPS < 0 {
		return fmt.Errorf("config: PROVIDER_RPS must not be negative")
	}
	return nil
}
