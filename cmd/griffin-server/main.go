// Package main is the entry point for the griffin-server process: the
// HTTP API and the scheduler tick loop that enqueues due plan runs.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/griffin-monitoring/griffin/internal/config"
	"github.com/griffin-monitoring/griffin/internal/database"
	"github.com/griffin-monitoring/griffin/internal/events"
	"github.com/griffin-monitoring/griffin/internal/events/adapters"
	"github.com/griffin-monitoring/griffin/internal/httpapi"
	"github.com/griffin-monitoring/griffin/internal/logging"
	"github.com/griffin-monitoring/griffin/internal/queue"
	"github.com/griffin-monitoring/griffin/internal/repository"
	"github.com/griffin-monitoring/griffin/internal/scheduler"
	"github.com/griffin-monitoring/griffin/internal/version"
)

func main() {
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting griffin-server",
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

	ctx, cancel := context.WithCancel(context.Background())

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(plans, runs, q, scheduler.Config{TickInterval: cfg.Scheduler.TickInterval}, logger)
		sched.Start(ctx)
	} else {
		logger.Info("scheduler disabled, running API-only replica")
	}

	router, err := httpapi.NewRouter(cfg.HTTP, plans, runs, q, db, logger)
	if err != nil {
		logger.Error("failed to build http router", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		<-sigChan

		logger.Info("shutting down server")

		cancel()
		if sched != nil {
			sched.Stop()
		}
		if err := emitter.Flush(context.Background()); err != nil {
			logger.Warn("failed to flush pending events during shutdown", "error", err)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting server", "addr", cfg.HTTP.Addr, "environment", cfg.Environment)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
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
