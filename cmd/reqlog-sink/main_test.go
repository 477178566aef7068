package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/veicheck/veicheck/engine/lookup"
	"github.com/veicheck/veicheck/engine/reqlog"
	"github.com/veicheck/veicheck/pkg/config"
)

func TestPersist(t *testing.T) {
	ring := reqlog.NewMemory(5)
	h := persist(ring, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	h(context.Background(), lookup.Entry{ID: "e1"})
	h(context.Background(), lookup.Entry{})

	got, _ := ring.Recent(context.Background(), 0)
	if len(got) != 1 || got[0].ID != "e1" {
		t.Fatalf("unexpected entries: %+v", got)
	}
}

func TestPersist_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	failing := lookup.RequestLogFunc(func(context.Context, lookup.Entry) error { return errors.New("db down") })
	persist(failing, slog.New(slog.NewTextHandler(&buf, nil)))(context.Background(), lookup.Entry{ID: "e1"})

	if !strings.Contains(buf.String(), "db down") {
		t.Fatalf("failure not logged: %s", buf.String())
	}
}

func TestRun_RequiresConnections(t *testing.T) {
	if err := run(config.Config{}, slog.Default()); err == nil {
		t.Fatal("expected error without NATS_URL and DATABASE_URL")
	}
}
