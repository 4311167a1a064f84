package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/platinummonkey/funnelpulse/pkg/app"
	"github.com/platinummonkey/funnelpulse/pkg/config"
	"github.com/platinummonkey/funnelpulse/pkg/observability"
	"github.com/platinummonkey/funnelpulse/pkg/scheduler"
)

var version = "dev"

var (
	envFile         = flag.String("env-file", "", "Optional .env file loaded before the environment is read")
	runOnce         = flag.Bool("run-once", false, "Run aggregation once and exit")
	aggregationDate = flag.String("date", "", "Date to aggregate (YYYY-MM-DD). If empty, the scheduled target date. Only used with --run-once")
	backfillStart   = flag.String("backfill-start", "", "First date of a backfill (YYYY-MM-DD); requires --backfill-end")
	backfillEnd     = flag.String("backfill-end", "", "Last date of a backfill (YYYY-MM-DD), inclusive")
	backfillWorkers = flag.Int("backfill-workers", 0, "Days aggregated concurrently during a backfill (default FUNNEL_BACKFILL_WORKERS)")
)

func main() {
	flag.Parse()

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}
	if err := config.LoadDotEnv(envFiles...); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithComponent("funnel-aggregator")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otel, err := observability.InitOTel(ctx, cfg.OTel(), logger)
	if err != nil {
		logger.WithError(err).Warn("OpenTelemetry initialization failed, continuing without export")
	}

	svc, err := app.New(ctx, cfg, logger, version)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize")
		os.Exit(1)
	}

	sched, err := scheduler.New(svc.Aggregator, svc.Alerter, cfg.Aggregation, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to create scheduler")
		os.Exit(1)
	}

	shutdown := observability.NewShutdownManager(logger, nil, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otel, logger)
	})
	shutdown.RegisterShutdownFunc("storage", func(context.Context) error {
		return svc.Close()
	})
	shutdown.RegisterShutdownFunc("retention cleanup", svc.Aggregator.Wait)

	switch {
	case *backfillStart != "" || *backfillEnd != "":
		os.Exit(exitCode(runBackfill(ctx, svc, cfg, logger), shutdown))
	case *runOnce:
		os.Exit(exitCode(runSingle(ctx, sched, logger), shutdown))
	}

	if err := svc.WatchRules(ctx); err != nil {
		logger.WithError(err).Warn("Alert rules hot reload disabled")
	}

	sched.Start()
	shutdown.RegisterShutdownFunc("scheduler", sched.Stop)
	shutdown.RegisterShutdownFunc("background", func(context.Context) error {
		cancel()
		return nil
	})

	if err := shutdown.WaitForShutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown completed with errors")
		os.Exit(1)
	}
}

func runSingle(ctx context.Context, sched *scheduler.Scheduler, logger *observability.Logger) error {
	date := *aggregationDate
	if date == "" {
		date = sched.TargetDate()
	}

	logger.WithField("date", date).Info("Running aggregation once")
	metrics, fired, err := sched.RunAggregation(ctx, date)
	if err != nil {
		logger.WithError(err).Error("Aggregation failed")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"date":              metrics.Date,
		"sessions":          metrics.Sessions.Total,
		"performance_score": metrics.PerformanceScore,
		"alerts":            len(fired),
	}).Info("Aggregation completed successfully")
	return nil
}

func runBackfill(ctx context.Context, svc *app.App, cfg *config.Config, logger *observability.Logger) error {
	workers := *backfillWorkers
	if workers <= 0 {
		workers = cfg.Aggregation.BackfillWorkers
	}

	logger.WithFields(map[string]interface{}{
		"start":   *backfillStart,
		"end":     *backfillEnd,
		"workers": workers,
	}).Info("Starting backfill")

	results, err := svc.Aggregator.Backfill(ctx, *backfillStart, *backfillEnd, workers)
	for _, r := range results {
		if r.Error != "" {
			logger.WithField("date", r.Date).WithField("error", r.Error).Warn("Backfill day failed")
		}
	}
	if err != nil {
		logger.WithError(err).Error("Backfill finished with failures")
		return err
	}
	return nil
}

func exitCode(runErr error, shutdown *observability.ShutdownManager) int {
	code := 0
	if runErr != nil {
		code = 1
	}
	if err := shutdown.Shutdown(); err != nil {
		code = 1
	}
	return code
}
