// Package config loads application configuration from AEGIS_* environment
// variables with sensible defaults for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/aegis/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Cache         CacheConfig
	Snapshot      SnapshotConfig
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

	// PrincipalHeader is the trusted header carrying the authenticated user id.
	PrincipalHeader string

	// MaxBodyBytes caps request body size.
	MaxBodyBytes int64
}

// CacheConfig holds consistency cache configuration
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Size    int
}

// SnapshotConfig holds snapshot persistence configuration. An empty
// PostgresURL runs the engine memory-only.
type SnapshotConfig struct {
	PostgresURL string

	// SaveInterval is how often the scheduler persists a snapshot. Zero
	// disables periodic saves (a save still runs at shutdown).
	SaveInterval time.Duration

	// SeedDefaults installs the default role and permission set into an
	// empty engine at startup.
	SeedDefaults bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
	AuditEnabled   bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("AEGIS_HOST", "0.0.0.0"),
			Port:            getEnv("AEGIS_PORT", "8080"),
			ReadTimeout:     getEnvDuration("AEGIS_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("AEGIS_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("AEGIS_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("AEGIS_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("AEGIS_HEALTH_PORT", "9090"),
			PrincipalHeader: getEnv("AEGIS_PRINCIPAL_HEADER", "X-Principal-ID"),
			MaxBodyBytes:    getEnvInt64("AEGIS_MAX_BODY_BYTES", 1<<20),
		},
		Cache: CacheConfig{
			Enabled: getEnvBool("AEGIS_CACHE_ENABLED", true),
			TTL:     getEnvDuration("AEGIS_CACHE_TTL", 24*time.Hour),
			Size:    getEnvInt("AEGIS_CACHE_SIZE", 4096),
		},
		Snapshot: SnapshotConfig{
			PostgresURL:  getEnv("AEGIS_POSTGRES_URL", ""),
			SaveInterval: getEnvDuration("AEGIS_SNAPSHOT_INTERVAL", 5*time.Minute),
			SeedDefaults: getEnvBool("AEGIS_SEED_DEFAULTS", false),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLogLevel(strings.ToLower(getEnv("AEGIS_LOG_LEVEL", "info"))),
			MetricsEnabled: getEnvBool("AEGIS_METRICS_ENABLED", true),
			AuditEnabled:   getEnvBool("AEGIS_AUDIT_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
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
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}
	if c.Cache.Enabled {
		if c.Cache.TTL <= 0 {
			return fmt.Errorf("cache TTL must be positive when the cache is enabled")
		}
		if c.Cache.Size <= 0 {
			return fmt.Errorf("cache size must be positive when the cache is enabled")
		}
	}
	if c.Snapshot.SaveInterval < 0 {
		return fmt.Errorf("snapshot interval must not be negative")
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

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
