package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/medora/medora/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Env names the deployment environment ("development", "test", "production")
	Env string

	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Realtime      RealtimeConfig
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
	OpsPort string
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
	RunMigrations   bool
	SeedCatalog     bool
}

// RedisConfig holds Redis connection settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
}

// AuthConfig holds token and identity settings
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration

	// DevHeader enables the "id: <account uuid>" header used by local
	// tooling. Never enabled in production.
	DevHeader bool
}

// RealtimeConfig holds websocket settings
type RealtimeConfig struct {
	Enabled        bool
	Channel        string
	AllowedOrigins []string
	WriteTimeout   time.Duration
	PingInterval   time.Duration
}

// RateLimitConfig holds request rate limiting settings
type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration

	// TrustProxy keys anonymous callers by X-Forwarded-For and X-Real-IP.
	// Set it only behind a proxy that rewrites those headers.
	TrustProxy bool
}

// AuditConfig holds audit trail retention settings
type AuditConfig struct {
	Retention     time.Duration
	PurgeSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Env:           getEnv("MEDORA_ENV", "development"),
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Auth:          loadAuthConfig(),
		Realtime:      loadRealtimeConfig(),
		RateLimit:     loadRateLimitConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("MEDORA_HOST", "0.0.0.0"),
		Port:            getEnv("MEDORA_PORT", "8080"),
		ReadTimeout:     getEnvDuration("MEDORA_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("MEDORA_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("MEDORA_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("MEDORA_SHUTDOWN_TIMEOUT", 30*time.Second),
		OpsPort:         getEnv("MEDORA_OPS_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("MEDORA_DATABASE_URL", ""),
		MaxOpenConns:    getEnvInt("MEDORA_DATABASE_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("MEDORA_DATABASE_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("MEDORA_DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		ConnectTimeout:  getEnvDuration("MEDORA_DATABASE_CONNECT_TIMEOUT", 10*time.Second),
		RunMigrations:   getEnvBool("MEDORA_DATABASE_MIGRATE", true),
		SeedCatalog:     getEnvBool("MEDORA_DATABASE_SEED", true),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:       getEnv("MEDORA_REDIS_ADDR", ""),
		Password:   getEnv("MEDORA_REDIS_PASSWORD", ""),
		DB:         getEnvInt("MEDORA_REDIS_DB", 0),
		PoolSize:   getEnvInt("MEDORA_REDIS_POOL_SIZE", 10),
		MaxRetries: getEnvInt("MEDORA_REDIS_MAX_RETRIES", 3),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret: getEnv("MEDORA_JWT_SECRET", ""),
		Issuer:    getEnv("MEDORA_JWT_ISSUER", "medora"),
		TokenTTL:  getEnvDuration("MEDORA_JWT_TTL", 24*time.Hour),
		DevHeader: getEnvBool("MEDORA_AUTH_DEV_HEADER", false),
	}
}

func loadRealtimeConfig() RealtimeConfig {
	return RealtimeConfig{
		Enabled:        getEnvBool("MEDORA_REALTIME_ENABLED", true),
		Channel:        getEnv("MEDORA_REALTIME_CHANNEL", "medora:realtime"),
		AllowedOrigins: getEnvList("MEDORA_REALTIME_ALLOWED_ORIGINS"),
		WriteTimeout:   getEnvDuration("MEDORA_REALTIME_WRITE_TIMEOUT", 10*time.Second),
		PingInterval:   getEnvDuration("MEDORA_REALTIME_PING_INTERVAL", 30*time.Second),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:  getEnvBool("MEDORA_RATELIMIT_ENABLED", true),
		Requests: getEnvInt("MEDORA_RATELIMIT_REQUESTS", 120),
		Window:   getEnvDuration("MEDORA_RATELIMIT_WINDOW", time.Minute),

		TrustProxy: getEnvBool("MEDORA_RATELIMIT_TRUST_PROXY", false),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Retention:     getEnvDuration("MEDORA_AUDIT_RETENTION", 90*24*time.Hour),
		PurgeSchedule: getEnv("MEDORA_AUDIT_PURGE_SCHEDULE", "@daily"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(strings.ToLower(getEnv("MEDORA_LOG_LEVEL", "info"))),
		MetricsEnabled:     getEnvBool("MEDORA_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("MEDORA_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("MEDORA_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("MEDORA_OTEL_SERVICE_NAME", "medora"),
		OTelServiceVersion: getEnv("MEDORA_OTEL_SERVICE_VERSION", "dev"),
		OTelInsecure:       getEnvBool("MEDORA_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("MEDORA_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if c.Server.OpsPort == "" {
		return errors.New("ops port is required")
	}
	if c.Server.Port == c.Server.OpsPort {
		return errors.New("server port and ops port must be different")
	}

	if c.Database.URL == "" {
		return errors.New("database URL is required (MEDORA_DATABASE_URL)")
	}

	if c.Auth.JWTSecret == "" {
		return errors.New("JWT secret is required (MEDORA_JWT_SECRET)")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("token TTL must be positive")
	}
	if c.Auth.DevHeader && c.IsProduction() {
		return errors.New("the id header seam cannot be enabled in production")
	}
	if c.IsProduction() && len(c.Auth.JWTSecret) < 32 {
		return errors.New("JWT secret must be at least 32 bytes in production")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Requests <= 0 {
			return errors.New("rate limit requests must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return errors.New("rate limit window must be positive")
		}
	}

	if c.Audit.Retention <= 0 {
		return errors.New("audit retention must be positive")
	}
	if c.Audit.PurgeSchedule == "" {
		return errors.New("audit purge schedule is required")
	}
	if _, err := cron.ParseStandard(c.Audit.PurgeSchedule); err != nil {
		return fmt.Errorf("invalid audit purge schedule %q: %w", c.Audit.PurgeSchedule, err)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return errors.New("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return errors.New("OpenTelemetry service name is required when OTel is enabled")
		}
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
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
