package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrMissingConfig = errors.New("missing required configuration")
	ErrInvalidConfig = errors.New("invalid configuration value")
)

// Environment represents the deployment environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Sync         SyncConfig
	Google       GoogleConfig
	Practice     PracticeConfig
	RateLimiting RateLimitConfig
	Telemetry    TelemetryConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port        int
	Environment Environment
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string
}

// SyncConfig holds sync scheduling configuration.
type SyncConfig struct {
	// Owners are the calendar owner ids synced in the background.
	Owners       []string
	Interval     time.Duration
	PushInterval time.Duration
}

// GoogleConfig holds the CalDAV endpoint for the google source.
type GoogleConfig struct {
	BaseURL      string
	PathTemplate string
	Username     string
	Password     string
}

// PracticeConfig holds the REST endpoint for the practice-management source.
type PracticeConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// TelemetryConfig holds the optional OTLP collector settings.
type TelemetryConfig struct {
	OTLPEndpoint string
	Insecure     bool
}

// Load loads configuration from environment variables.
// It attempts to load from .env file first, but continues if not found.
func Load() (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load() //nolint:errcheck // Intentionally ignore - .env file is optional

	cfg := &Config{}

	// Server configuration
	port, err := getEnvInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%w: PORT: %w", ErrInvalidConfig, err)
	}
	cfg.Server.Port = port
	cfg.Server.Environment = Environment(strings.ToLower(getEnv("ENVIRONMENT", "production")))

	// Database configuration
	cfg.Database.Path = getEnv("DATABASE_PATH", "./data/practicesync.db")

	// Sync configuration
	if owners := getEnv("SYNC_OWNERS", ""); owners != "" {
		for _, owner := range strings.Split(owners, ",") {
			owner = strings.TrimSpace(owner)
			if owner != "" {
				cfg.Sync.Owners = append(cfg.Sync.Owners, owner)
			}
		}
	}
	interval, err := getEnvDuration("SYNC_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("%w: SYNC_INTERVAL: %w", ErrInvalidConfig, err)
	}
	cfg.Sync.Interval = interval

	pushInterval, err := getEnvDuration("PUSH_INTERVAL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("%w: PUSH_INTERVAL: %w", ErrInvalidConfig, err)
	}
	cfg.Sync.PushInterval = pushInterval

	// Google source (CalDAV)
	cfg.Google.BaseURL = getEnvRequired("GOOGLE_CALDAV_URL")
	cfg.Google.PathTemplate = getEnv("GOOGLE_CALENDAR_PATH", "/calendars/%s/events/")
	cfg.Google.Username = getEnv("GOOGLE_CALDAV_USERNAME", "")
	cfg.Google.Password = getEnv("GOOGLE_CALDAV_PASSWORD", "")

	// Practice-management source (REST)
	cfg.Practice.BaseURL = getEnvRequired("PRACTICE_API_URL")
	cfg.Practice.APIKey = getEnv("PRACTICE_API_KEY", "")
	practiceTimeout, err := getEnvDuration("PRACTICE_API_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("%w: PRACTICE_API_TIMEOUT: %w", ErrInvalidConfig, err)
	}
	cfg.Practice.Timeout = practiceTimeout

	// Rate limiting configuration
	rps, err := getEnvFloat("RATE_LIMIT_RPS", 10.0)
	if err != nil {
		return nil, fmt.Errorf("%w: RATE_LIMIT_RPS: %w", ErrInvalidConfig, err)
	}
	cfg.RateLimiting.RPS = rps

	burst, err := getEnvInt("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, fmt.Errorf("%w: RATE_LIMIT_BURST: %w", ErrInvalidConfig, err)
	}
	cfg.RateLimiting.Burst = burst

	// Telemetry configuration (optional)
	cfg.Telemetry.OTLPEndpoint = getEnv("OTLP_ENDPOINT", "")
	insecureOTLP, err := getEnvBool("OTLP_INSECURE", false)
	if err != nil {
		return nil, fmt.Errorf("%w: OTLP_INSECURE: %w", ErrInvalidConfig, err)
	}
	cfg.Telemetry.Insecure = insecureOTLP

	// Check for missing required configuration
	missing := cfg.getMissingRequired()
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}

	return cfg, nil
}

// getMissingRequired returns a list of missing required configuration values.
func (c *Config) getMissingRequired() []string {
	var missing []string

	if c.Google.BaseURL == "" {
		missing = append(missing, "GOOGLE_CALDAV_URL")
	}
	if c.Practice.BaseURL == "" {
		missing = append(missing, "PRACTICE_API_URL")
	}

	return missing
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvRequired returns the value of an environment variable.
// Returns empty string if not set (caller should check for required values).
func getEnvRequired(key string) string {
	return os.Getenv(key)
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	return parsed, nil
}

// getEnvFloat returns the float value of an environment variable or a default.
func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float: %w", err)
	}
	return parsed, nil
}

// getEnvBool returns the boolean value of an environment variable or a default.
func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid boolean: %w", err)
	}
	return parsed, nil
}

// getEnvDuration returns the duration value of an environment variable or a
// default. Values use Go duration syntax, e.g. "5m" or "90s".
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %w", err)
	}
	return parsed, nil
}
