// Package config provides application configuration management from environment variables.
//
// # Overview
//
// LoadConfig reads FUNNEL_* variables, applies defaults, and validates the
// result. LoadDotEnv can seed the environment from a .env file first;
// variables already set in the process take precedence.
//
// # Configuration Structure
//
// Server settings:
//
//	FUNNEL_HOST="0.0.0.0"
//	FUNNEL_PORT="8080"
//	FUNNEL_HEALTH_PORT="9090"
//	FUNNEL_MAX_BODY_BYTES="1048576"
//	FUNNEL_CORS_ORIGINS="https://www.example.com,https://example.com"
//
// Storage settings:
//
//	FUNNEL_STORAGE_TYPE="redis"  # memory, filesystem, redis, s3, postgres, sqlite
//	FUNNEL_NAMESPACE="funnel_telemetry"
//	FUNNEL_REDIS_URL="redis://localhost:6379/0"
//	FUNNEL_POSTGRES_URL="postgres://localhost/funnel?sslmode=disable"
//	FUNNEL_S3_BUCKET="funnel-telemetry"
//	FUNNEL_CACHE_ENABLED="true"
//
// Aggregation settings:
//
//	FUNNEL_RETENTION_DAYS="90"
//	FUNNEL_SCHEDULE="daily"          # daily, hourly
//	FUNNEL_TIMEZONE="America/Edmonton"
//	FUNNEL_AGGREGATE_CRON="5 0 * * *"
//	FUNNEL_TREND_REPORT_CRON="0 6 * * 1"
//	FUNNEL_CTR_DROP_THRESHOLD="0.2"
//
// Alerting settings:
//
//	FUNNEL_ALERT_RULES_FILE="/etc/funnelpulse/rules.yaml"
//	FUNNEL_SLACK_WEBHOOK_URL="https://hooks.slack.com/services/..."
//	FUNNEL_ALERT_WEBHOOK_URL="https://ops.example.com/hooks/funnel"
//	FUNNEL_ALERT_WEBHOOK_SECRET="..."
//
// Admin authentication (any combination):
//
//	FUNNEL_OIDC_ISSUER_URL="https://accounts.example.com"
//	FUNNEL_OIDC_CLIENT_ID="funnel-admin"
//	FUNNEL_JWT_SECRET="..."
//	FUNNEL_ADMIN_TOKEN="..."
//
// Observability settings:
//
//	FUNNEL_LOG_LEVEL="info"
//	FUNNEL_METRICS_ENABLED="true"
//	FUNNEL_OTEL_ENABLED="false"
//	FUNNEL_OTEL_ENDPOINT="localhost:4317"
package config
