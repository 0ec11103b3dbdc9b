package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env      string
	HTTPPort string

	DatabaseDriver string
	DatabaseURL    string

	SessionJWTSecret       string
	SessionJWTIssuer       string
	SessionJWTAudience     string
	SessionTTL             time.Duration
	VerificationSessionTTL time.Duration

	AuthEmailVerifyTokenTTL      time.Duration
	AuthPasswordResetTokenTTL    time.Duration
	AuthTokenBytes               int
	AuthPasswordMinLength        int
	AuthResetConcealUnknownEmail bool
	AppPublicBaseURL             string
	CORSAllowedOrigins           []string

	MailDriver   string
	MailFrom     string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string

	OutboxPollInterval    time.Duration
	OutboxBatchSize       int
	OutboxConcurrency     int
	OutboxMaxAttempts     int
	OutboxRetryBaseDelay  time.Duration
	OutboxRetryMaxDelay   time.Duration
	OutboxLease           time.Duration
	OutboxRedisChannel    string
	OutboxReadyMaxPending int64

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ReadinessProbeTimeout        time.Duration
	ServerStartGracePeriod       time.Duration
	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration

	LogFilePath       string
	LogFileMaxSizeMB  int
	LogFileMaxBackups int
	LogFileMaxAgeDays int

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsExportInterval time.Duration
	OTELTraceSamplingRatio    float64
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELLogLevel              string
}

func Load() (*Config, error) {
	env := getEnv("APP_ENV", "development")
	localLike := isLocalLikeEnv(env)

	cfg := &Config{
		Env:                          env,
		HTTPPort:                     getEnv("HTTP_PORT", "8080"),
		DatabaseDriver:               strings.ToLower(getEnv("DATABASE_DRIVER", "postgres")),
		DatabaseURL:                  os.Getenv("DATABASE_URL"),
		SessionJWTSecret:             os.Getenv("SESSION_JWT_SECRET"),
		SessionJWTIssuer:             getEnv("SESSION_JWT_ISSUER", "credential-manager-go"),
		SessionJWTAudience:           getEnv("SESSION_JWT_AUDIENCE", "credential-manager-go-api"),
		AuthTokenBytes:               getEnvInt("AUTH_TOKEN_BYTES", 32),
		AuthPasswordMinLength:        getEnvInt("AUTH_PASSWORD_MIN_LENGTH", 8),
		AuthResetConcealUnknownEmail: getEnvBool("AUTH_RESET_CONCEAL_UNKNOWN_EMAIL", false),
		AppPublicBaseURL:             strings.TrimRight(getEnv("APP_PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		CORSAllowedOrigins:           splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),

		MailDriver:   strings.ToLower(getEnv("MAIL_DRIVER", defaultMailDriver(localLike))),
		MailFrom:     getEnv("MAIL_FROM", `"Skill Bridge" <no-reply@skillbridge.com>`),
		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),

		OutboxBatchSize:       getEnvInt("OUTBOX_BATCH_SIZE", 20),
		OutboxConcurrency:     getEnvInt("OUTBOX_CONCURRENCY", 4),
		OutboxMaxAttempts:     getEnvInt("OUTBOX_MAX_ATTEMPTS", 8),
		OutboxRedisChannel:    getEnv("OUTBOX_REDIS_CHANNEL", "credential-manager:outbox"),
		OutboxReadyMaxPending: int64(getEnvInt("OUTBOX_READY_MAX_PENDING", 1000)),

		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		LogFilePath:       os.Getenv("LOG_FILE_PATH"),
		LogFileMaxSizeMB:  getEnvInt("LOG_FILE_MAX_SIZE_MB", 10),
		LogFileMaxBackups: getEnvInt("LOG_FILE_MAX_BACKUPS", 5),
		LogFileMaxAgeDays: getEnvInt("LOG_FILE_MAX_AGE_DAYS", 7),

		OTELServiceName:          getEnv("OTEL_SERVICE_NAME", "credential-manager-go"),
		OTELEnvironment:          getEnv("OTEL_ENVIRONMENT", env),
		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELTraceSamplingRatio:   getEnvFloat("OTEL_TRACE_SAMPLING_RATIO", 1.0),
		OTELMetricsEnabled:       getEnvBool("OTEL_METRICS_ENABLED", !localLike),
		OTELTracingEnabled:       getEnvBool("OTEL_TRACING_ENABLED", !localLike),
		OTELLogsEnabled:          getEnvBool("OTEL_LOGS_ENABLED", !localLike),
		OTELLogLevel:             strings.ToLower(getEnv("OTEL_LOG_LEVEL", "info")),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"SESSION_TTL", "24h", &cfg.SessionTTL},
		{"VERIFICATION_SESSION_TTL", "15m", &cfg.VerificationSessionTTL},
		{"AUTH_EMAIL_VERIFY_TOKEN_TTL", "15m", &cfg.AuthEmailVerifyTokenTTL},
		{"AUTH_PASSWORD_RESET_TOKEN_TTL", "1h", &cfg.AuthPasswordResetTokenTTL},
		{"OUTBOX_POLL_INTERVAL", "5s", &cfg.OutboxPollInterval},
		{"OUTBOX_RETRY_BASE_DELAY", "10s", &cfg.OutboxRetryBaseDelay},
		{"OUTBOX_RETRY_MAX_DELAY", "15m", &cfg.OutboxRetryMaxDelay},
		{"OUTBOX_LEASE", "1m", &cfg.OutboxLease},
		{"READINESS_PROBE_TIMEOUT", "1s", &cfg.ReadinessProbeTimeout},
		{"SERVER_START_GRACE_PERIOD", "0s", &cfg.ServerStartGracePeriod},
		{"SHUTDOWN_TIMEOUT", "20s", &cfg.ShutdownTimeout},
		{"SHUTDOWN_HTTP_DRAIN_TIMEOUT", "10s", &cfg.ShutdownHTTPDrainTimeout},
		{"SHUTDOWN_OBSERVABILITY_TIMEOUT", "8s", &cfg.ShutdownObservabilityTimeout},
		{"OTEL_METRICS_EXPORT_INTERVAL", "10s", &cfg.OTELMetricsExportInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnv(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite" {
		errs = append(errs, "DATABASE_DRIVER must be one of postgres, sqlite")
	}
	if len(c.SessionJWTSecret) < 32 {
		errs = append(errs, "SESSION_JWT_SECRET must be at least 32 chars")
	}
	if c.SessionTTL <= 0 || c.SessionTTL > 7*24*time.Hour {
		errs = append(errs, "SESSION_TTL must be between 1s and 7d")
	}
	if c.VerificationSessionTTL <= 0 || c.VerificationSessionTTL > c.SessionTTL {
		errs = append(errs, "VERIFICATION_SESSION_TTL must be > 0 and not exceed SESSION_TTL")
	}
	if c.AuthEmailVerifyTokenTTL <= 0 {
		errs = append(errs, "AUTH_EMAIL_VERIFY_TOKEN_TTL must be > 0")
	}
	if c.AuthPasswordResetTokenTTL <= 0 || c.AuthPasswordResetTokenTTL > 24*time.Hour {
		errs = append(errs, "AUTH_PASSWORD_RESET_TOKEN_TTL must be between 1s and 24h")
	}
	if c.AuthTokenBytes < 16 || c.AuthTokenBytes > 64 {
		errs = append(errs, "AUTH_TOKEN_BYTES must be between 16 and 64")
	}
	if c.AuthPasswordMinLength < 8 || c.AuthPasswordMinLength > 128 {
		errs = append(errs, "AUTH_PASSWORD_MIN_LENGTH must be between 8 and 128")
	}
	if u, err := url.Parse(c.AppPublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "APP_PUBLIC_BASE_URL must be an absolute URL")
	}
	switch c.MailDriver {
	case "log":
	case "smtp":
		if c.SMTPHost == "" {
			errs = append(errs, "SMTP_HOST is required when MAIL_DRIVER=smtp")
		}
		if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
			errs = append(errs, "SMTP_PORT must be a valid port")
		}
	default:
		errs = append(errs, "MAIL_DRIVER must be one of smtp, log")
	}
	if strings.TrimSpace(c.MailFrom) == "" {
		errs = append(errs, "MAIL_FROM is required")
	}
	if c.OutboxPollInterval <= 0 {
		errs = append(errs, "OUTBOX_POLL_INTERVAL must be > 0")
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, "OUTBOX_BATCH_SIZE must be > 0")
	}
	if c.OutboxConcurrency <= 0 {
		errs = append(errs, "OUTBOX_CONCURRENCY must be > 0")
	}
	if c.OutboxMaxAttempts <= 0 {
		errs = append(errs, "OUTBOX_MAX_ATTEMPTS must be > 0")
	}
	if c.OutboxRetryBaseDelay <= 0 || c.OutboxRetryMaxDelay < c.OutboxRetryBaseDelay {
		errs = append(errs, "OUTBOX_RETRY_BASE_DELAY must be > 0 and not exceed OUTBOX_RETRY_MAX_DELAY")
	}
	if c.OutboxLease <= 0 {
		errs = append(errs, "OUTBOX_LEASE must be > 0")
	}
	if c.RedisEnabled && c.RedisAddr == "" {
		errs = append(errs, "REDIS_ADDR is required when REDIS_ENABLED=true")
	}
	if c.ReadinessProbeTimeout <= 0 {
		errs = append(errs, "READINESS_PROBE_TIMEOUT must be > 0")
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, "SHUTDOWN_TIMEOUT must be > 0")
	}
	if c.ShutdownHTTPDrainTimeout <= 0 || c.ShutdownHTTPDrainTimeout > c.ShutdownTimeout {
		errs = append(errs, "SHUTDOWN_HTTP_DRAIN_TIMEOUT must be > 0 and not exceed SHUTDOWN_TIMEOUT")
	}
	if c.ShutdownObservabilityTimeout <= 0 || c.ShutdownObservabilityTimeout > c.ShutdownTimeout {
		errs = append(errs, "SHUTDOWN_OBSERVABILITY_TIMEOUT must be > 0 and not exceed SHUTDOWN_TIMEOUT")
	}
	if c.LogFilePath != "" && (c.LogFileMaxSizeMB <= 0 || c.LogFileMaxBackups < 0 || c.LogFileMaxAgeDays < 0) {
		errs = append(errs, "LOG_FILE_* rotation settings must be positive")
	}
	if (c.OTELMetricsEnabled || c.OTELTracingEnabled || c.OTELLogsEnabled) && c.OTELExporterOTLPEndpoint == "" {
		errs = append(errs, "OTEL_EXPORTER_OTLP_ENDPOINT is required when OTel is enabled")
	}
	if c.OTELTraceSamplingRatio < 0 || c.OTELTraceSamplingRatio > 1 {
		errs = append(errs, "OTEL_TRACE_SAMPLING_RATIO must be between 0 and 1")
	}
	if c.OTELMetricsExportInterval <= 0 {
		errs = append(errs, "OTEL_METRICS_EXPORT_INTERVAL must be > 0")
	}
	if !isValidLogLevel(c.OTELLogLevel) {
		errs = append(errs, "OTEL_LOG_LEVEL must be one of debug, info, warn, error")
	}

	if isProdLikeEnv(c.Env) {
		if c.MailDriver == "log" {
			errs = append(errs, "MAIL_DRIVER=log is not allowed in production")
		}
		if c.DatabaseDriver == "sqlite" {
			errs = append(errs, "DATABASE_DRIVER=sqlite is not allowed in production")
		}
		if u, err := url.Parse(c.AppPublicBaseURL); err == nil && u.Scheme != "https" {
			errs = append(errs, "APP_PUBLIC_BASE_URL must use https in production")
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func defaultMailDriver(localLike bool) string {
	if localLike {
		return "log"
	}
	return "smtp"
}

// IsLocal reports whether APP_ENV names a developer or test profile.
func (c *Config) IsLocal() bool { return isLocalLikeEnv(c.Env) }

func isLocalLikeEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "development", "dev", "local", "test":
		return true
	default:
		return false
	}
}

func isProdLikeEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod":
		return true
	default:
		return false
	}
}

func isValidLogLevel(v string) bool {
	switch strings.ToLower(v) {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trim := strings.TrimSpace(p)
		if trim != "" {
			out = append(out, trim)
		}
	}
	return out
}
