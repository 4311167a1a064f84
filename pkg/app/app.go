// Package app assembles the shared runtime of the funnelpulse binaries from a
// loaded configuration: storage backend, metrics, aggregator, tracker,
// alerter with its notifiers, and the HTTP auth and rate limit layers.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/funnelpulse/pkg/analytics"
	"github.com/platinummonkey/funnelpulse/pkg/async"
	"github.com/platinummonkey/funnelpulse/pkg/audit"
	"github.com/platinummonkey/funnelpulse/pkg/config"
	"github.com/platinummonkey/funnelpulse/pkg/middleware"
	"github.com/platinummonkey/funnelpulse/pkg/observability"
	"github.com/platinummonkey/funnelpulse/pkg/storage/factory"
	"github.com/platinummonkey/funnelpulse/pkg/storage/postgres"
	"github.com/platinummonkey/funnelpulse/pkg/webhooks"
)

// App is the assembled runtime
type App struct {
	Config   *config.Config
	Logger   *observability.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Health   *observability.HealthChecker

	Store      *factory.Backend
	Aggregator *analytics.Aggregator
	Tracker    *analytics.EventTracker
	Alerter    *analytics.Alerter

	closers []io.Closer
}

// New opens the storage backend and builds the analytics components. The
// caller owns the returned App and must Close it.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger, version string) (*App, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	a := &App{
		Config: cfg,
		Logger: logger,
		Health: observability.NewHealthChecker(version),
	}
	if cfg.Observability.MetricsEnabled {
		a.Registry = prometheus.NewRegistry()
		a.Metrics = observability.NewMetrics(a.Registry)
	}

	store, err := factory.Open(ctx, cfg.Storage, a.Metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, store)
	a.Health.AddCheck("storage", true, store.HealthCheck)

	aggCfg := cfg.Aggregation.AggregationConfig
	a.Aggregator = analytics.NewAggregator(store, aggCfg,
		analytics.WithLogger(logger),
		analytics.WithMetrics(a.Metrics),
	)
	a.Tracker = analytics.NewEventTracker(store, aggCfg,
		analytics.WithTrackerLogger(logger),
		analytics.WithTrackerMetrics(a.Metrics),
	)
	a.Alerter = analytics.NewAlerter(analytics.DefaultAlertRules(aggCfg.AlertThresholds),
		analytics.WithAlerterLogger(logger),
		analytics.WithAlerterMetrics(a.Metrics),
		analytics.WithHistoryLimit(cfg.Alerts.HistoryLimit),
		analytics.WithNotifiers(Notifiers(cfg.Alerts)...),
	)

	if cfg.Alerts.RulesFile != "" {
		rules, err := analytics.LoadRules(cfg.Alerts.RulesFile, aggCfg.AlertThresholds)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Alerter.SetRules(rules)
	}

	return a, nil
}

// Notifiers builds a notifier for every configured channel. Email has no
// transport and stays unconfigured.
func Notifiers(cfg config.AlertsConfig) []analytics.Notifier {
	sender := webhooks.NewSender(nil, webhooks.NewRetryPolicy(cfg.Retry))

	var out []analytics.Notifier
	if cfg.Slack.WebhookURL != "" {
		out = append(out, webhooks.NewSlackNotifier(cfg.Slack, sender))
	}
	if cfg.Webhook.URL != "" {
		out = append(out, webhooks.NewWebhookNotifier(cfg.Webhook, sender))
	}
	return out
}

// WatchRules hot reloads the alert rules file until ctx is done. It is a
// no-op without a rules file.
func (a *App) WatchRules(ctx context.Context) error {
	path := a.Config.Alerts.RulesFile
	if path == "" {
		return nil
	}
	watcher, err := analytics.NewRuleWatcher(path, a.Config.Aggregation.AlertThresholds, a.Alerter, a.Logger)
	if err != nil {
		return err
	}
	async.SafeGo(ctx, a.Logger, 0, "alert rule watcher", watcher.Run)
	a.Logger.WithField("path", path).Info("Watching alert rules file")
	return nil
}

// Verifier builds the admin token verifier chain: OIDC, then HS256 JWT, then
// the static admin token. With nothing configured every admin call is refused.
func (a *App) Verifier(ctx context.Context) (middleware.TokenVerifier, error) {
	auth := a.Config.Auth
	var chain middleware.ChainVerifier

	if auth.OIDCIssuerURL != "" {
		oidcVerifier, err := middleware.NewOIDCVerifier(ctx, auth.OIDCIssuerURL, auth.OIDCClientID)
		if err != nil {
			return nil, err
		}
		chain = append(chain, oidcVerifier)
	}
	if auth.JWTSecret != "" {
		chain = append(chain, middleware.NewHMACVerifier(auth.JWTSecret, auth.JWTIssuer))
	}
	if auth.AdminToken != "" {
		chain = append(chain, middleware.NewStaticTokenVerifier(auth.AdminToken, ""))
	}

	if len(chain) == 0 {
		a.Logger.Warn("No admin authentication configured, admin endpoints will refuse every request")
	}
	return chain, nil
}

// Limiter builds the telemetry rate limiter, or nil when limiting is disabled.
// The memory limiter's idle buckets are swept until ctx is done.
func (a *App) Limiter(ctx context.Context) (middleware.Limiter, error) {
	rl := a.Config.RateLimit
	if !rl.Enabled {
		return nil, nil
	}
	limits := rl.RateLimitConfig

	switch rl.Backend {
	case "redis":
		client, err := postgres.NewRedisClient(ctx, a.Config.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to connect rate limiter to redis: %w", err)
		}
		a.closers = append(a.closers, client)
		limiter := middleware.NewDistributedRateLimiter(client, &limits, "")
		a.Health.AddCheck("rate_limiter", false, limiter.HealthCheck)
		return limiter, nil
	default:
		limiter := middleware.NewRateLimiter(&limits)
		limiter.StartCleanup(ctx, a.Logger)
		return limiter, nil
	}
}

// AuditLogger builds the admin audit trail, or nil when auditing is
// disabled. Without a log directory events go to the application log.
func (a *App) AuditLogger() (audit.Logger, error) {
	cfg := a.Config.Audit
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.LogDir == "" {
		return audit.NewLogLogger(a.Logger), nil
	}

	logger, err := audit.NewFileLogger(audit.FileLoggerConfig{
		BasePath: cfg.LogDir,
		MaxSize:  int64(cfg.MaxSizeMB) * 1024 * 1024,
		MaxFiles: cfg.MaxFiles,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, logger)
	a.Logger.WithField("dir", cfg.LogDir).Info("Writing admin audit trail")
	return logger, nil
}

// Close releases the storage backend and any extra connections
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
