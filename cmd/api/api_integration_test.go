//go:build integration

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/veicheck/veicheck/engine/lookup"
	"github.com/veicheck/veicheck/pkg/config"
)

// Requires DATABASE_URL and NATS_URL pointing at running services.
func TestOpenRequestLog_PostgresAndNATS(t *testing.T) {
	cfg := config.Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		NATSURL:          os.Getenv("NATS_URL"),
		NATSSubject:      "veicheck.integ.requests",
		RequestLogBuffer: 10,
	}
	if cfg.DatabaseURL == "" || cfg.NATSURL == "" {
		t.Skip("DATABASE_URL and NATS_URL are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log, reader, closeFn, err := openRequestLog(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("openRequestLog: %v", err)
	}
	defer closeFn()

	e := lookup.Entry{ID: "integ-" + time.Now().Format("150405.000000"), At: time.Now().UTC(), Kind: "plate", Value: "ABC1D23", Variant: "national-registry", Code: 200, Success: true}
	if err := log.Append(ctx, e); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := reader.Recent(ctx, 50)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	for _, got := range entries {
		if got.ID == e.ID {
			return
		}
	}
	t.Fatalf("entry %s not found in postgres", e.ID)
}
