// Command reqlog-sink consumes request log entries from NATS and persists
// them to Postgres.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/veicheck/veicheck/engine/lookup"
	"github.com/veicheck/veicheck/engine/reqlog"
	"github.com/veicheck/veicheck/pkg/config"
	"github.com/veicheck/veicheck/pkg/natsutil"
)

const queueGroup = "reqlog-sink"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("sink exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	if cfg.NATSURL == "" || cfg.DatabaseURL == "" {
		return errors.New("NATS_URL and DATABASE_URL are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := reqlog.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := reqlog.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	sink := reqlog.NewPostgres(pool)

	nc, err := nats.Connect(cfg.NATSURL, nats.Name(queueGroup))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	sub, err := natsutil.QueueSubscribe(nc, cfg.NATSSubject, queueGroup, persist(sink, logger))
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.NATSSubject, err)
	}
	defer sub.Unsubscribe()

	logger.Info("reqlog sink running", "subject", cfg.NATSSubject)
	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}

// persist returns the message handler writing each entry to log. Failures
// are logged; the entry is not redelivered.
func persist(log lookup.RequestLog, logger *slog.Logger) func(context.Context, lookup.Entry) {
	return func(ctx context.Context, e lookup.Entry) {
		if e.ID == "" {
			logger.Warn("dropping request log entry without id")
			return
		}
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := log.Append(ctx, e); err != nil {
			logger.Error("persist request log entry", "id", e.ID, "err", err)
		}
	}
}
