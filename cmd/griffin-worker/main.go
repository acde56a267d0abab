// Package main is the entry point for the griffin-worker process: one
// location's job-claiming, plan-executing pool.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/griffin-monitoring/griffin/internal/config"
	"github.com/griffin-monitoring/griffin/internal/database"
	"github.com/griffin-monitoring/griffin/internal/events"
	"github.com/griffin-monitoring/griffin/internal/events/adapters"
	"github.com/griffin-monitoring/griffin/internal/httpclient"
	"github.com/griffin-monitoring/griffin/internal/logging"
	"github.com/griffin-monitoring/griffin/internal/queue"
	"github.com/griffin-monitoring/griffin/internal/repository"
	"github.com/griffin-monitoring/griffin/internal/secrets"
	"github.com/griffin-monitoring/griffin/internal/version"
	"github.com/griffin-monitoring/griffin/internal/worker"
)

func main() {
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting griffin-worker",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.MigrateWithLogger(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	plans := repository.NewPostgresPlanRepository(db)
	runs := repository.NewPostgresRunRepository(db)
	q := queue.NewPostgres(db)

	secretsRegistry, err := buildSecretsRegistry(context.Background(), cfg.Secrets)
	if err != nil {
		logger.Error("failed to build secrets registry", "error", err)
		os.Exit(1)
	}

	eventAdapter, err := buildEventAdapter(cfg.Events, logger)
	if err != nil {
		logger.Error("failed to build events adapter", "error", err)
		os.Exit(1)
	}
	emitter := events.NewDurable(events.DurableConfig{
		BatchSize:     cfg.Events.BatchSize,
		FlushInterval: cfg.Events.FlushInterval,
		MaxRetries:    cfg.Events.MaxRetries,
		RetryDelay:    cfg.Events.RetryDelay,
	}, eventAdapter, logger)

	w := worker.New(
		plans,
		runs,
		q,
		httpclient.New(),
		secretsRegistry,
		emitter,
		worker.Config{
			Location:            cfg.Worker.Location,
			Concurrency:         cfg.Worker.Concurrency,
			PollInterval:        cfg.Worker.PollInterval,
			MaxPollInterval:     cfg.Worker.MaxPollInterval,
			ShutdownGracePeriod: cfg.Worker.ShutdownGracePeriod,
			LeaseDuration:       cfg.Worker.LeaseDuration,
		},
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	logger.Info("shutting down worker")
	cancel()
	w.Stop()

	if err := emitter.Flush(context.Background()); err != nil {
		logger.Warn("failed to flush pending events during shutdown", "error", err)
	}

	logger.Info("worker stopped")
}

func buildSecretsRegistry(ctx context.Context, cfg config.SecretsConfig) (*secrets.Registry, error) {
	resolvers := map[string]secrets.Resolver{
		"env": secrets.NewEnvResolver(),
	}

	if cfg.AWSRegion != "" {
		aws, err := secrets.NewAWSResolver(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		resolvers["aws"] = aws
	}

	if cfg.VaultAddr != "" {
		resolvers["vault"] = secrets.NewVaultResolver(secrets.VaultConfig{
			Addr:               cfg.VaultAddr,
			Token:              cfg.VaultToken,
			BreakerMaxRequests: cfg.CircuitBreakerMaxRequests,
			BreakerTimeout:     cfg.CircuitBreakerTimeout,
		})
	}

	return secrets.NewRegistry(ctx, resolvers)
}

func buildEventAdapter(cfg config.EventsConfig, logger *slog.Logger) (events.Adapter, error) {
	switch cfg.Adapter {
	case "kinesis":
		logger.Info("events adapter: kinesis", "stream", cfg.KinesisStreamName, "region", cfg.KinesisRegion)
		return adapters.NewKinesis(context.Background(), cfg.KinesisRegion, cfg.KinesisStreamName)
	default:
		logger.Info("events adapter: memory")
		return adapters.NewMemory(), nil
	}
}
