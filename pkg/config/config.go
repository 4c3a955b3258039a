package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gatehouse-io/gatehouse/pkg/authz"
	"github.com/gatehouse-io/gatehouse/pkg/observability"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Cache         CacheConfig
	Sweeper       SweeperConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// RedisConfig holds the optional Redis connection. When URL is empty the
// engine runs with the in-process cache and without the event publisher.
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// Enabled reports whether a Redis endpoint is configured.
func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

// CacheConfig controls the resolution cache.
type CacheConfig struct {
	// Backend is "memory" or "redis". Redis requires RedisConfig.URL.
	Backend string
	TTL     time.Duration
	Size    int
}

// SweeperConfig controls the background job that hard-deletes long-expired
// assignments and grants and purges old audit records.
type SweeperConfig struct {
	Enabled        bool
	Schedule       string
	Retention      time.Duration
	AuditRetention time.Duration
}

// AuditConfig controls the audit trail sinks.
type AuditConfig struct {
	DatabaseEnabled bool
	FilePath        string
}

// ObservabilityConfig holds logging, metrics and tracing settings.
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Cache:         loadCacheConfig(),
		Sweeper:       loadSweeperConfig(),
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
		Host:            getEnv("GATEHOUSE_HOST", "0.0.0.0"),
		Port:            getEnv("GATEHOUSE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("GATEHOUSE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("GATEHOUSE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("GATEHOUSE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("GATEHOUSE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("GATEHOUSE_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("GATEHOUSE_POSTGRES_URL", ""),
		MaxOpenConns:    getEnvInt("GATEHOUSE_POSTGRES_MAX_CONNS", 25),
		MaxIdleConns:    getEnvInt("GATEHOUSE_POSTGRES_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("GATEHOUSE_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		ConnectTimeout:  getEnvDuration("GATEHOUSE_POSTGRES_TIMEOUT", 10*time.Second),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:        getEnv("GATEHOUSE_REDIS_URL", ""),
		Password:   getEnv("GATEHOUSE_REDIS_PASSWORD", ""),
		DB:         getEnvInt("GATEHOUSE_REDIS_DB", 0),
		MaxRetries: getEnvInt("GATEHOUSE_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("GATEHOUSE_REDIS_POOL_SIZE", 10),
	}
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Backend: strings.ToLower(getEnv("GATEHOUSE_CACHE_BACKEND", "memory")),
		TTL:     getEnvDuration("GATEHOUSE_CACHE_TTL", authz.DefaultCacheTTL),
		Size:    getEnvInt("GATEHOUSE_CACHE_SIZE", authz.DefaultCacheSize),
	}
}

func loadSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Enabled:        getEnvBool("GATEHOUSE_SWEEPER_ENABLED", true),
		Schedule:       getEnv("GATEHOUSE_SWEEPER_SCHEDULE", "@hourly"),
		Retention:      getEnvDuration("GATEHOUSE_SWEEPER_RETENTION", 30*24*time.Hour),
		AuditRetention: getEnvDuration("GATEHOUSE_AUDIT_RETENTION", 90*24*time.Hour),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		DatabaseEnabled: getEnvBool("GATEHOUSE_AUDIT_DB_ENABLED", true),
		FilePath:        getEnv("GATEHOUSE_AUDIT_FILE", ""),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           ParseLogLevel(getEnv("GATEHOUSE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("GATEHOUSE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("GATEHOUSE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("GATEHOUSE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("GATEHOUSE_OTEL_SERVICE_NAME", "gatehouse"),
		OTelServiceVersion: getEnv("GATEHOUSE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("GATEHOUSE_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled() {
			return fmt.Errorf("redis URL is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be memory or redis)", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}

	if c.Sweeper.Enabled {
		if c.Sweeper.Schedule == "" {
			return fmt.Errorf("sweeper schedule is required when the sweeper is enabled")
		}
		if c.Sweeper.Retention <= 0 {
			return fmt.Errorf("sweeper retention must be positive")
		}
	}

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

// ParseLogLevel parses a log level string, defaulting to info.
func ParseLogLevel(level string) observability.LogLevel {
	return observability.ParseLogLevel(level)
}

// getEnv returns an environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
