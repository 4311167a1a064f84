package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/funnelpulse/pkg/analytics"
	"github.com/platinummonkey/funnelpulse/pkg/middleware"
	"github.com/platinummonkey/funnelpulse/pkg/observability"
	"github.com/platinummonkey/funnelpulse/pkg/storage"
	"github.com/platinummonkey/funnelpulse/pkg/webhooks"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Aggregation   AggregationConfig
	Alerts        AlertsConfig
	Auth          AuthConfig
	RateLimit     RateLimitConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// MaxBodyBytes caps telemetry request bodies
	MaxBodyBytes int64
	// CORSOrigins may call the telemetry endpoint from a browser
	CORSOrigins  []string
	// DocsEnabled serves /openapi.yaml, /openapi.json and the Swagger UI
	DocsEnabled  bool
}

// AggregationConfig wraps the aggregator settings with the scheduler's
type AggregationConfig struct {
	analytics.AggregationConfig

	TimeZone string

	// AggregateCron schedules the daily run; empty derives it from Schedule
	AggregateCron   string
	// TrendReportCron schedules the logged trend report
	TrendReportCron string
	TrendDays       int
	BackfillWorkers int
}

// AlertsConfig holds alert rule and notification settings
type AlertsConfig struct {
	RulesFile    string
	HistoryLimit int
	Slack        webhooks.SlackConfig
	Webhook      webhooks.WebhookConfig
	Retry        webhooks.RetryConfig
}

// AuthConfig holds admin authentication settings. Any combination of
// verifiers may be configured; a token accepted by one is accepted.
type AuthConfig struct {
	OIDCIssuerURL string
	OIDCClientID  string

	JWTSecret string
	JWTIssuer string

	AdminToken string
}

// Configured reports whether any admin verifier is set up
func (a AuthConfig) Configured() bool {
	return a.OIDCIssuerURL != "" || a.JWTSecret != "" || a.AdminToken != ""
}

// RateLimitConfig holds telemetry endpoint rate limiting settings
// Backend is "memory" or "redis".
type RateLimitConfig struct {
	Enabled  bool
	Backend  string
	FailOpen bool
	middleware.RateLimitConfig
}

// AuditConfig holds the admin audit trail settings. With no LogDir the
// events go to the application log.
type AuditConfig struct {
	Enabled   bool
	LogDir    string
	MaxSizeMB int
	MaxFiles  int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// OTel converts the settings for observability.InitOTel, tagging the
// resource with the telemetry namespace and aggregation schedule
func (c *Config) OTel() observability.OTelConfig {
	o := c.Observability
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
		Attributes: map[string]string{
			"funnel.namespace": c.Aggregation.Namespace,
			"funnel.schedule":  string(c.Aggregation.Schedule),
		},
	}
}

// LoadDotEnv loads variables from the given files without overriding ones
// already set. With no arguments it reads ./.env if present.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	aggregation, err := loadAggregationConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Aggregation:   aggregation,
		Alerts:        loadAlertsConfig(),
		Auth:          loadAuthConfig(),
		RateLimit:     loadRateLimitConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}
	cfg.Storage.Namespace = cfg.Aggregation.Namespace

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("FUNNEL_HOST", "0.0.0.0"),
		Port:            getEnv("FUNNEL_PORT", "8080"),
		ReadTimeout:     getEnvDuration("FUNNEL_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("FUNNEL_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getEnvDuration("FUNNEL_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("FUNNEL_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("FUNNEL_HEALTH_PORT", "9090"),
		MaxBodyBytes:    getEnvInt64("FUNNEL_MAX_BODY_BYTES", 1<<20),
		CORSOrigins:     getEnvList("FUNNEL_CORS_ORIGINS", []string{"*"}),
		DocsEnabled:     getEnvBool("FUNNEL_DOCS_ENABLED", true),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	cfg.Type = getEnv("FUNNEL_STORAGE_TYPE", cfg.Type)
	cfg.MemoryMaxKeys = getEnvInt("FUNNEL_MEMORY_MAX_KEYS", cfg.MemoryMaxKeys)
	cfg.FilesystemRoot = getEnv("FUNNEL_FILESYSTEM_ROOT", cfg.FilesystemRoot)

	// PostgreSQL config
	cfg.PostgresURL = getEnv("FUNNEL_POSTGRES_URL", cfg.PostgresURL)
	if maxConns := getEnvInt("FUNNEL_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("FUNNEL_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("FUNNEL_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	cfg.SQLitePath = getEnv("FUNNEL_SQLITE_PATH", cfg.SQLitePath)

	// S3 config
	cfg.S3Endpoint = getEnv("FUNNEL_S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3Region = getEnv("FUNNEL_S3_REGION", cfg.S3Region)
	cfg.S3Bucket = getEnv("FUNNEL_S3_BUCKET", cfg.S3Bucket)
	cfg.S3AccessKey = getEnv("FUNNEL_S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = getEnv("FUNNEL_S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.S3UsePathStyle = getEnvBool("FUNNEL_S3_USE_PATH_STYLE", cfg.S3UsePathStyle)

	// Redis config
	cfg.RedisURL = getEnv("FUNNEL_REDIS_URL", cfg.RedisURL)
	cfg.RedisPassword = getEnv("FUNNEL_REDIS_PASSWORD", cfg.RedisPassword)
	if redisDB := getEnvInt("FUNNEL_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("FUNNEL_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("FUNNEL_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	// Cache config
	cfg.CacheEnabled = getEnvBool("FUNNEL_CACHE_ENABLED", cfg.CacheEnabled)
	cfg.CacheTTL = getEnvDuration("FUNNEL_CACHE_TTL", cfg.CacheTTL)
	cfg.CacheMaxKeys = getEnvInt("FUNNEL_CACHE_MAX_KEYS", cfg.CacheMaxKeys)

	return cfg
}

func loadAggregationConfig() (AggregationConfig, error) {
	base := analytics.DefaultAggregationConfig()
	base.Namespace = getEnv("FUNNEL_NAMESPACE", base.Namespace)
	base.RetentionDays = getEnvInt("FUNNEL_RETENTION_DAYS", base.RetentionDays)
	base.Schedule = analytics.Schedule(strings.ToLower(getEnv("FUNNEL_SCHEDULE", string(base.Schedule))))
	base.MaxDropoutFields = getEnvInt("FUNNEL_MAX_DROPOUT_FIELDS", base.MaxDropoutFields)
	base.MaxBackfillDays = getEnvInt("FUNNEL_MAX_BACKFILL_DAYS", base.MaxBackfillDays)
	base.AlertThresholds.CTRDrop = getEnvFloat("FUNNEL_CTR_DROP_THRESHOLD", base.AlertThresholds.CTRDrop)
	base.AlertThresholds.FormCompletionDrop = getEnvFloat("FUNNEL_FORM_COMPLETION_DROP_THRESHOLD", base.AlertThresholds.FormCompletionDrop)
	base.AlertThresholds.BounceRateSpike = getEnvFloat("FUNNEL_BOUNCE_RATE_SPIKE_THRESHOLD", base.AlertThresholds.BounceRateSpike)

	cfg := AggregationConfig{
		AggregationConfig: base,
		TimeZone:          getEnv("FUNNEL_TIMEZONE", "UTC"),
		AggregateCron:     getEnv("FUNNEL_AGGREGATE_CRON", ""),
		TrendReportCron:   getEnv("FUNNEL_TREND_REPORT_CRON", "0 6 * * 1"),
		TrendDays:         getEnvInt("FUNNEL_TREND_DAYS", 7),
		BackfillWorkers:   getEnvInt("FUNNEL_BACKFILL_WORKERS", 4),
	}

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return cfg, fmt.Errorf("invalid timezone %q: %w", cfg.TimeZone, err)
	}
	cfg.Location = loc

	if cfg.AggregateCron == "" {
		cfg.AggregateCron = DefaultAggregateCron(cfg.Schedule)
	}

	return cfg, nil
}

// DefaultAggregateCron returns the cron spec for a schedule. Daily runs
// shortly after midnight; hourly re-aggregates today five minutes past each hour.
func DefaultAggregateCron(schedule analytics.Schedule) string {
	if schedule == analytics.ScheduleHourly {
		return "5 * * * *"
	}
	return "5 0 * * *"
}

func loadAlertsConfig() AlertsConfig {
	retry := webhooks.DefaultRetryConfig()
	retry.MaxAttempts = getEnvInt("FUNNEL_NOTIFY_MAX_ATTEMPTS", retry.MaxAttempts)

	headers := map[string]string{}
	if token := getEnv("FUNNEL_ALERT_WEBHOOK_TOKEN", ""); token != "" {
		headers["Authorization"] = "Bearer " + token
	}

	return AlertsConfig{
		RulesFile:    getEnv("FUNNEL_ALERT_RULES_FILE", ""),
		HistoryLimit: getEnvInt("FUNNEL_ALERT_HISTORY_LIMIT", 100),
		Slack: webhooks.SlackConfig{
			WebhookURL: getEnv("FUNNEL_SLACK_WEBHOOK_URL", ""),
			Channel:    getEnv("FUNNEL_SLACK_CHANNEL", "#alerts"),
			Username:   getEnv("FUNNEL_SLACK_USERNAME", "Conversion Monitor"),
		},
		Webhook: webhooks.WebhookConfig{
			URL:     getEnv("FUNNEL_ALERT_WEBHOOK_URL", ""),
			Headers: headers,
			Secret:  getEnv("FUNNEL_ALERT_WEBHOOK_SECRET", ""),
		},
		Retry: retry,
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		OIDCIssuerURL: getEnv("FUNNEL_OIDC_ISSUER_URL", ""),
		OIDCClientID:  getEnv("FUNNEL_OIDC_CLIENT_ID", ""),
		JWTSecret:     getEnv("FUNNEL_JWT_SECRET", ""),
		JWTIssuer:     getEnv("FUNNEL_JWT_ISSUER", "funnelpulse"),
		AdminToken:    getEnv("FUNNEL_ADMIN_TOKEN", ""),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	defaults := middleware.DefaultRateLimitConfig()
	return RateLimitConfig{
		Enabled:  getEnvBool("FUNNEL_RATE_LIMIT_ENABLED", true),
		Backend:  strings.ToLower(getEnv("FUNNEL_RATE_LIMIT_BACKEND", "memory")),
		FailOpen: getEnvBool("FUNNEL_RATE_LIMIT_FAIL_OPEN", true),
		RateLimitConfig: middleware.RateLimitConfig{
			RequestsPerWindow: getEnvInt("FUNNEL_RATE_LIMIT_REQUESTS", defaults.RequestsPerWindow),
			WindowDuration:    getEnvDuration("FUNNEL_RATE_LIMIT_WINDOW", defaults.WindowDuration),
			BurstSize:         getEnvInt("FUNNEL_RATE_LIMIT_BURST", defaults.BurstSize),
		},
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:   getEnvBool("FUNNEL_AUDIT_ENABLED", true),
		LogDir:    getEnv("FUNNEL_AUDIT_LOG_DIR", ""),
		MaxSizeMB: getEnvInt("FUNNEL_AUDIT_MAX_SIZE_MB", 100),
		MaxFiles:  getEnvInt("FUNNEL_AUDIT_MAX_FILES", 10),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("FUNNEL_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("FUNNEL_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("FUNNEL_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("FUNNEL_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("FUNNEL_OTEL_SERVICE_NAME", "funnelpulse"),
		OTelServiceVersion: getEnv("FUNNEL_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("FUNNEL_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("FUNNEL_OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}

	if err := validateStorage(c.Storage); err != nil {
		return err
	}

	if err := c.Aggregation.Validate(); err != nil {
		return fmt.Errorf("invalid aggregation config: %w", err)
	}
	for name, spec := range map[string]string{
		"aggregate":    c.Aggregation.AggregateCron,
		"trend report": c.Aggregation.TrendReportCron,
	} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid %s cron %q: %w", name, spec, err)
		}
	}
	if c.Aggregation.TrendDays < 2 {
		return fmt.Errorf("trend days must be at least 2, got %d", c.Aggregation.TrendDays)
	}
	if c.Aggregation.BackfillWorkers < 1 {
		return fmt.Errorf("backfill workers must be at least 1, got %d", c.Aggregation.BackfillWorkers)
	}

	if c.Alerts.HistoryLimit < 1 {
		return fmt.Errorf("alert history limit must be at least 1")
	}
	if c.Alerts.Retry.MaxAttempts < 1 {
		return fmt.Errorf("notification attempts must be at least 1")
	}

	if (c.Auth.OIDCIssuerURL == "") != (c.Auth.OIDCClientID == "") {
		return fmt.Errorf("OIDC issuer URL and client ID must be set together")
	}

	if c.RateLimit.Enabled {
		switch c.RateLimit.Backend {
		case "memory":
		case "redis":
			if c.Storage.RedisURL == "" {
				return fmt.Errorf("redis URL is required for the redis rate limit backend")
			}
		default:
			return fmt.Errorf("invalid rate limit backend: %s (must be memory or redis)", c.RateLimit.Backend)
		}
		if c.RateLimit.RequestsPerWindow < 1 || c.RateLimit.WindowDuration <= 0 {
			return fmt.Errorf("rate limit requests and window must be positive")
		}
	}

	if c.Audit.Enabled && c.Audit.LogDir != "" && (c.Audit.MaxSizeMB < 1 || c.Audit.MaxFiles < 1) {
		return fmt.Errorf("audit max size and max files must be positive")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

func validateStorage(s storage.Config) error {
	switch s.Type {
	case storage.TypeMemory:
	case storage.TypeFilesystem:
		if s.FilesystemRoot == "" {
			return fmt.Errorf("filesystem root is required for filesystem storage")
		}
	case storage.TypeRedis:
		if s.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis storage")
		}
	case storage.TypeS3:
		if s.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required for s3 storage")
		}
	case storage.TypePostgres:
		if s.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	case storage.TypeSQLite:
		if s.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory, filesystem, redis, s3, postgres, or sqlite)", s.Type)
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
