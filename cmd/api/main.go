// Package main implements the vehicle lookup API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/veicheck/veicheck/engine/lookup"
	"github.com/veicheck/veicheck/engine/provider"
	"github.com/veicheck/veicheck/engine/reqlog"
	"github.com/veicheck/veicheck/engine/store"
	"github.com/veicheck/veicheck/pkg/config"
	"github.com/veicheck/veicheck/pkg/metrics"
	"github.com/veicheck/veicheck/pkg/mid"
	"github.com/veicheck/veicheck/pkg/resilience"
)

const serviceName = "veicheck-api"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	m := metrics.NewLookup(reg)

	// --- Vehicle store ---
	vehicles, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// --- Request log ---
	requestLog, requests, closeLog, err := openRequestLog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLog()

	// --- Provider ---
	breaker := resilience.NewBreaker(resilience.BreakerOpts{
		FailThreshold: cfg.BreakerThreshold,
		Timeout:       cfg.BreakerTimeout,
		OnStateChange: func(from, to resilience.State) {
			m.SetBreakerState(int(to))
			logger.Warn("provider circuit breaker", "from", from.String(), "to", to.String())
		},
	})
	client := provider.NewClient(provider.Config{
		BaseURL: cfg.ProviderBaseURL,
		Token:   cfg.ProviderToken,
		Timeout: cfg.ProviderTimeout,
		RPS:     cfg.ProviderRPS,
		Burst:   cfg.ProviderBurst,
	})

	opts := []lookup.Option{
		lookup.WithLogger(logger),
		lookup.WithMetrics(m),
		lookup.WithRequestLog(requestLog),
		lookup.WithHomeUF(cfg.HomeUF),
		lookup.WithDefaultTTL(cfg.CacheTTLDays),
	}
	if cfg.SingleFlight {
		opts = append(opts, lookup.WithSingleFlight())
	}
	resolver := lookup.NewResolver(vehicles, provider.NewGuard(client, breaker), opts...)

	// --- Build HTTP server ---
	api := &server{resolver: resolver, requests: requests, metrics: m, logger: logger}
	handler := mid.Chain(api.routes(reg),
		mid.Recover(logger),
		mid.RequestID(),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel(serviceName),
		mid.MaxBody(64<<10),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ProviderTimeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- gRPC health ---
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	healthSrv.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	// --- Graceful shutdown ---
	errCh := make(chan error, 2)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "store", cfg.StoreBackend)
		errCh <- srv.ListenAndServe()
	}()
	go func() {
		logger.Info("grpc health server starting", "port", cfg.GRPCPort)
		errCh <- grpcSrv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			grpcSrv.Stop()
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	healthSrv.Shutdown()
	grpcSrv.GracefulStop()

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// openStore connects the configured vehicle store backend.
func openStore(ctx context.Context, cfg config.Config) (lookup.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendNeo4j:
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
		if err != nil {
			return nil, nil, fmt.Errorf("neo4j driver: %w", err)
		}
		closeFn := func() { driver.Close(context.Background()) }
		if err := driver.VerifyConnectivity(ctx); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("neo4j connect: %w", err)
		}
		s := store.NewNeo4j(driver)
		if err := s.EnsureIndexes(ctx); err != nil {
			closeFn()
			return nil, nil, err
		}
		return s, closeFn, nil

	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass, DB: cfg.RedisDB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("redis connect: %w", err)
		}
		return store.NewRedis(rdb), func() { rdb.Close() }, nil

	default:
		return store.NewMemory(), func() {}, nil
	}
}

// openRequestLog assembles the request log sinks. Entries always go to an
// in-memory ring; Postgres and NATS are added when configured. The returned
// reader is Postgres when available, otherwise the ring.
func openRequestLog(ctx context.Context, cfg config.Config, logger *slog.Logger) (lookup.RequestLog, reqlog.Reader, func(), error) {
	ring := reqlog.NewMemory(cfg.RequestLogBuffer)
	sinks := reqlog.Multi{ring}
	var reader reqlog.Reader = ring
	var closers []func()

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.DatabaseURL != "" {
		pool, err := reqlog.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		closers = append(closers, pool.Close)
		if err := reqlog.EnsureSchema(ctx, pool); err != nil {
			closeAll()
			return nil, nil, nil, err
		}
		pg := reqlog.NewPostgres(pool)
		sinks = append(sinks, pg)
		reader = pg
		logger.Info("request log persisted to postgres")
	}

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name(serviceName))
		if err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("nats connect: %w", err)
		}
		closers = append(closers, nc.Close)
		sinks = append(sinks, reqlog.NewPublisher(nc, cfg.NATSSubject))
		logger.Info("request log published to nats", "subject", cfg.NATSSubject)
	}

	return sinks, reader, closeAll, nil
}
