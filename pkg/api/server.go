package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/funnelpulse/pkg/analytics"
	"github.com/platinummonkey/funnelpulse/pkg/audit"
	"github.com/platinummonkey/funnelpulse/pkg/httputil"
	"github.com/platinummonkey/funnelpulse/pkg/middleware"
	"github.com/platinummonkey/funnelpulse/pkg/observability"
	"github.com/platinummonkey/funnelpulse/pkg/swagger"
)

// Options configures the API server. Zero values disable the optional parts.
type Options struct {
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Health   *observability.HealthChecker

	// Verifier authenticates admin routes. nil rejects every admin request.
	Verifier middleware.TokenVerifier
	// Limiter throttles the public telemetry endpoint. nil disables limiting.
	Limiter  middleware.Limiter
	FailOpen bool
	// Audit records every admin call. nil disables the audit trail.
	Audit    audit.Logger
	// Docs serves the OpenAPI document and Swagger UI when set
	Docs     bool

	CORS         httputil.CORSConfig
	MaxBodyBytes int64
}

// Server represents our API server
type Server struct {
	router     *mux.Router
	handler    http.Handler
	aggregator *analytics.Aggregator
	tracker    *analytics.EventTracker
	alerter    *analytics.Alerter
	opts       Options
	logger     *observability.Logger
}

// NewServer creates a new API server. alerter may be nil, in which case the
// alert routes report 503.
func NewServer(aggregator *analytics.Aggregator, tracker *analytics.EventTracker, alerter *analytics.Alerter, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = httputil.DefaultMaxBodyBytes
	}
	if len(opts.CORS.AllowedOrigins) == 0 {
		opts.CORS = DefaultCORSConfig()
	}

	s := &Server{
		router:     mux.NewRouter(),
		aggregator: aggregator,
		tracker:    tracker,
		alerter:    alerter,
		opts:       opts,
		logger:     opts.Logger.WithComponent("api"),
	}
	s.setupRoutes()

	s.handler = otelhttp.NewHandler(
		httputil.Chain(
			httputil.RequestIDMiddleware(opts.Logger),
			httputil.RecoveryMiddleware,
			httputil.LoggingMiddleware,
		)(s.router),
		"funnelpulse-api",
	)
	return s
}

// DefaultCORSConfig allows any origin to post telemetry
func DefaultCORSConfig() httputil.CORSConfig {
	return httputil.CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	if s.opts.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.opts.Metrics))
	}

	// Public ingest
	s.router.Handle("/api/v1/telemetry", s.public(s.ingestTelemetry)).
		Methods(http.MethodPost, http.MethodOptions)

	// Metrics routes
	s.router.Handle("/api/v1/metrics/aggregate", s.admin(audit.EventTypeAggregate, s.aggregateDaily)).Methods(http.MethodPost)
	s.router.Handle("/api/v1/metrics/daily/{date}", s.admin(audit.EventTypeMetricsRead, s.getDailyMetrics)).Methods(http.MethodGet)
	s.router.Handle("/api/v1/metrics/trends", s.admin(audit.EventTypeTrendsRead, s.getTrends)).Methods(http.MethodGet)
	s.router.Handle("/api/v1/metrics/export", s.admin(audit.EventTypeExport, s.exportMetrics)).Methods(http.MethodGet)
	s.router.Handle("/api/v1/metrics", s.admin(audit.EventTypeMetricsRead, s.getMetricsRange)).Methods(http.MethodGet)

	// Alert routes
	s.router.Handle("/api/v1/alerts", s.admin(audit.EventTypeAlertsRead, s.listActiveAlerts)).Methods(http.MethodGet)
	s.router.Handle("/api/v1/alerts/history", s.admin(audit.EventTypeAlertsRead, s.listAlertHistory)).Methods(http.MethodGet)
	s.router.Handle("/api/v1/alerts/{id}/acknowledge", s.admin(audit.EventTypeAlertAcknowledge, s.acknowledgeAlert)).Methods(http.MethodPost)

	if s.opts.Docs {
		swagger.NewHandlers().RegisterRoutes(s.router)
	}

	s.registerOpsRoutes(s.router)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "route not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteMethodNotAllowed(w)
	})
}

func (s *Server) registerOpsRoutes(r *mux.Router) {
	if s.opts.Health != nil {
		r.HandleFunc("/health/live", s.opts.Health.Liveness).Methods(http.MethodGet)
		r.HandleFunc("/health/ready", s.opts.Health.Readiness).Methods(http.MethodGet)
	}
	if s.opts.Registry != nil {
		r.Handle("/metrics", observability.MetricsHandler(s.opts.Registry)).Methods(http.MethodGet)
	}
}

func (s *Server) public(h http.HandlerFunc) http.Handler {
	chain := []func(http.Handler) http.Handler{httputil.CORSMiddleware(s.opts.CORS)}
	if s.opts.Limiter != nil {
		limiter := middleware.NewRateLimitMiddleware(s.opts.Limiter, s.opts.FailOpen).WithMetrics(s.opts.Metrics)
		chain = append(chain, limiter.Handler)
	}
	return httputil.Chain(chain...)(h)
}

func (s *Server) admin(eventType audit.EventType, h http.HandlerFunc) http.Handler {
	verifier := s.opts.Verifier
	if verifier == nil {
		verifier = middleware.ChainVerifier{}
	}
	if s.opts.Audit == nil {
		return middleware.AdminAuthMiddleware(verifier)(h)
	}
	return httputil.Chain(
		audit.Middleware(s.opts.Audit, eventType),
		middleware.AdminAuthMiddleware(verifier),
		audit.CaptureSubject,
	)(h)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// OpsHandler serves only the health probes and Prometheus metrics, for the
// separate health port
func (s *Server) OpsHandler() http.Handler {
	r := mux.NewRouter()
	s.registerOpsRoutes(r)
	return r
}
