package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/platinummonkey/funnelpulse/pkg/api"
	"github.com/platinummonkey/funnelpulse/pkg/app"
	"github.com/platinummonkey/funnelpulse/pkg/config"
	"github.com/platinummonkey/funnelpulse/pkg/observability"
)

var version = "dev"

func main() {
	envFile := flag.String("env-file", "", "Optional .env file loaded before the environment is read")
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

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithComponent("funnel-server")

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

	verifier, err := svc.Verifier(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize admin authentication")
		os.Exit(1)
	}
	limiter, err := svc.Limiter(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize rate limiter")
		os.Exit(1)
	}
	auditLog, err := svc.AuditLogger()
	if err != nil {
		logger.WithError(err).Error("Failed to initialize audit trail")
		os.Exit(1)
	}
	if err := svc.WatchRules(ctx); err != nil {
		logger.WithError(err).Warn("Alert rules hot reload disabled")
	}

	cors := api.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.Server.CORSOrigins

	server := api.NewServer(svc.Aggregator, svc.Tracker, svc.Alerter, api.Options{
		Logger:       logger,
		Metrics:      svc.Metrics,
		Registry:     svc.Registry,
		Health:       svc.Health,
		Verifier:     verifier,
		Limiter:      limiter,
		FailOpen:     cfg.RateLimit.FailOpen,
		Audit:        auditLog,
		Docs:         cfg.Server.DocsEnabled,
		CORS:         cors,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	opsServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           server.OpsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otel, logger)
	})
	shutdown.RegisterShutdownFunc("storage", func(context.Context) error {
		return svc.Close()
	})
	shutdown.RegisterShutdownFunc("retention cleanup", svc.Aggregator.Wait)
	shutdown.RegisterShutdownFunc("background", func(context.Context) error {
		cancel()
		return nil
	})
	shutdown.RegisterShutdownFunc("ops server", opsServer.Shutdown)

	serve := func(name string, srv *http.Server) {
		defer observability.RecoverPanic(logger, name)
		logger.WithField("addr", srv.Addr).Infof("Starting %s", name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Errorf("%s stopped", name)
			cancel()
		}
	}
	go serve("ops server", opsServer)
	go serve("API server", httpServer)

	logger.WithFields(map[string]interface{}{
		"version":    version,
		"storage":    svc.Store.Type,
		"rate_limit": cfg.RateLimit.Enabled,
		"auth":       cfg.Auth.Configured(),
		"cors":       strings.Join(cfg.Server.CORSOrigins, ","),
	}).Info("Funnel telemetry server ready")

	if err := shutdown.WaitForShutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown completed with errors")
		os.Exit(1)
	}
}
