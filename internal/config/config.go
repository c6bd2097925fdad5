package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/hay-kot/criterio"
)

const (
	BackendAzure  = "azure"
	BackendMemory = "memory"
)

type Config struct {
	// HTTP Server
	Port           string
	RequestTimeout time.Duration
	RateLimitRPM   int

	// Work tracking backend
	DataBackend       string
	AzureBaseURL      string
	AzureAnalyticsURL string
	AzureAPIVersion   string
	MemorySeedPath    string

	// Token the worker uses to apply moves. Requests carry their own.
	AzureToken string

	// Lookup cache
	CacheTTL  time.Duration
	CacheSize int

	// Database
	SQLiteDBPath string

	// AMQP (optional; moves are applied inline without it)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Worker sweep of pending move requests
	SweepBatchSize int
	SweepInterval  time.Duration

	// Release checklist export (optional)
	GoogleSpreadsheetID string
}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8081"),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		RateLimitRPM:   getEnvInt("RATE_LIMIT_RPM", 60),

		DataBackend:       getEnv("DATA_BACKEND", BackendAzure),
		AzureBaseURL:      getEnv("AZURE_DEVOPS_BASE_URL", "https://dev.azure.com"),
		AzureAnalyticsURL: getEnv("AZURE_DEVOPS_ANALYTICS_URL", "https://analytics.dev.azure.com"),
		AzureAPIVersion:   getEnv("AZURE_DEVOPS_API_VERSION", "6.0"),
		MemorySeedPath:    getEnv("MEMORY_SEED_PATH", "./data/seed.json"),
		AzureToken:        getEnv("AZURE_DEVOPS_TOKEN", ""),

		CacheTTL:  getEnvDuration("CACHE_TTL", 5*time.Minute),
		CacheSize: getEnvInt("CACHE_SIZE", 256),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/devopsdash.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "devopsdash"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "move_work_items"),

		SweepBatchSize: getEnvInt("SWEEP_BATCH_SIZE", 20),
		SweepInterval:  getEnvDuration("SWEEP_INTERVAL", time.Minute),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
	}
}

// Validate checks every field and returns all problems as criterio.FieldErrors.
func (c *Config) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = errs.Append("PORT", fmt.Errorf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = errs.Append("PORT", fmt.Errorf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RequestTimeout < time.Second {
		errs = errs.Append("REQUEST_TIMEOUT", fmt.Errorf("invalid request timeout %v: must be at least 1 second", c.RequestTimeout))
	}
	if c.RateLimitRPM < 1 {
		errs = errs.Append("RATE_LIMIT_RPM", fmt.Errorf("invalid rate limit %d: must be at least 1", c.RateLimitRPM))
	}

	validBackends := []string{BackendAzure, BackendMemory}
	if !slices.Contains(validBackends, c.DataBackend) {
		errs = errs.Append("DATA_BACKEND", fmt.Errorf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}
	if c.DataBackend == BackendAzure {
		errs = appendURL(errs, "AZURE_DEVOPS_BASE_URL", c.AzureBaseURL, "http", "https")
		errs = appendURL(errs, "AZURE_DEVOPS_ANALYTICS_URL", c.AzureAnalyticsURL, "http", "https")
	}

	if c.CacheSize < 1 {
		errs = errs.Append("CACHE_SIZE", fmt.Errorf("invalid cache size %d: must be at least 1", c.CacheSize))
	}
	if c.CacheTTL <= 0 {
		errs = errs.Append("CACHE_TTL", fmt.Errorf("invalid cache ttl %v: must be positive", c.CacheTTL))
	}

	if c.SQLiteDBPath == "" {
		errs = errs.Append("SQLITE_DB_PATH", fmt.Errorf("SQLite database path cannot be empty"))
	} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				errs = errs.Append("SQLITE_DB_PATH", fmt.Errorf("cannot create SQLite database directory '%s': %w", dir, err))
			}
		}
	}

	if c.AMQPURL != "" {
		errs = appendURL(errs, "AMQP_URL", c.AMQPURL, "amqp", "amqps")
		if c.AMQPExchange == "" {
			errs = errs.Append("AMQP_EXCHANGE", fmt.Errorf("AMQP exchange name cannot be empty when AMQP URL is provided"))
		}
		if c.AMQPQueue == "" {
			errs = errs.Append("AMQP_QUEUE", fmt.Errorf("AMQP queue name cannot be empty when AMQP URL is provided"))
		}
	}

	if c.SweepBatchSize < 1 || c.SweepBatchSize > 1000 {
		errs = errs.Append("SWEEP_BATCH_SIZE", fmt.Errorf("invalid sweep batch size %d: must be between 1 and 1000", c.SweepBatchSize))
	}
	if c.SweepInterval < time.Second || c.SweepInterval > 24*time.Hour {
		errs = errs.Append("SWEEP_INTERVAL", fmt.Errorf("invalid sweep interval %v: must be between 1 second and 24 hours", c.SweepInterval))
	}

	return errs.ToError()
}

// ValidateWorker adds the checks only the move worker needs.
func (c *Config) ValidateWorker() error {
	var errs criterio.FieldErrorsBuilder
	if c.AzureToken == "" && c.DataBackend == BackendAzure {
		errs = errs.Append("AZURE_DEVOPS_TOKEN", fmt.Errorf("is required to apply moves"))
	}
	return criterio.ValidateStruct(c.Validate(), errs.ToError())
}

func appendURL(errs criterio.FieldErrorsBuilder, field, raw string, schemes ...string) criterio.FieldErrorsBuilder {
	u, err := url.Parse(raw)
	if err != nil {
		return errs.Append(field, fmt.Errorf("invalid URL '%s': %w", raw, err))
	}
	if !slices.Contains(schemes, u.Scheme) {
		return errs.Append(field, fmt.Errorf("invalid URL scheme '%s': must be one of %v", u.Scheme, schemes))
	}
	return errs
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
