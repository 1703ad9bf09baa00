package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/currency"
)

type Config struct {
	// Backend selection
	DataBackend string

	// Database
	SQLiteDBPath string

	// AMQP, disabled when AMQPURL is empty
	AMQPURL        string
	AMQPExchange   string
	AMQPEvalQueue  string
	AMQPFactsQueue string

	// Ingestion
	DefaultCurrency   string
	IngestDateFormat  string
	IngestMaxRows     int
	SynonymsFile      string
	FallbackExpense   string
	FallbackIncome    string
	CategoryCacheSize int
	CategoryCacheTTL  time.Duration

	// Worker
	EvalInterval    time.Duration
	EvalConcurrency int

	// Logging
	LogLevel  string
	LogFormat string
}

var validBackends = []string{"memory", "sqlite"}

func Load() *Config {
	cfg := &Config{
		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/fintrack.db"),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "fintrack"),
		AMQPEvalQueue:  getEnv("AMQP_EVAL_QUEUE", "evaluation_requests"),
		AMQPFactsQueue: getEnv("AMQP_FACTS_QUEUE", "spending_facts"),

		DefaultCurrency:   strings.ToUpper(getEnv("DEFAULT_CURRENCY", currency.DefaultCode)),
		IngestDateFormat:  getEnv("INGEST_DATE_FORMAT", "2006-01-02"),
		IngestMaxRows:     getEnvInt("INGEST_MAX_ROWS", 10000),
		SynonymsFile:      getEnv("CATEGORY_SYNONYMS_FILE", ""),
		FallbackExpense:   getEnv("FALLBACK_EXPENSE_CATEGORY", "Uncategorized"),
		FallbackIncome:    getEnv("FALLBACK_INCOME_CATEGORY", "Uncategorized Income"),
		CategoryCacheSize: getEnvInt("CATEGORY_CACHE_SIZE", 1024),
		CategoryCacheTTL:  getEnvDuration("CATEGORY_CACHE_TTL", 5*time.Minute),

		EvalInterval:    getEnvDuration("EVAL_INTERVAL", 15*time.Minute),
		EvalConcurrency: getEnvInt("EVAL_CONCURRENCY", 4),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// Validate validates the configuration and returns an error listing every
// problem found.
func (c *Config) Validate() error {
	var errors []string

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPEvalQueue == "" {
			errors = append(errors, "AMQP evaluation queue name cannot be empty when AMQP URL is provided")
		}
	}

	if !currency.Default().IsValid(c.DefaultCurrency) {
		errors = append(errors, fmt.Sprintf("invalid default currency '%s': not a known ISO-4217 code", c.DefaultCurrency))
	}

	if c.IngestDateFormat == "" {
		errors = append(errors, "ingest date format cannot be empty")
	} else if !roundTrips(c.IngestDateFormat) {
		errors = append(errors, fmt.Sprintf("invalid ingest date format '%s': must be a Go layout with year, month and day", c.IngestDateFormat))
	}

	if c.IngestMaxRows < 1 {
		errors = append(errors, fmt.Sprintf("invalid ingest max rows %d: must be at least 1", c.IngestMaxRows))
	} else if c.IngestMaxRows > 1_000_000 {
		errors = append(errors, fmt.Sprintf("invalid ingest max rows %d: must be at most 1000000", c.IngestMaxRows))
	}

	if c.SynonymsFile != "" {
		if _, err := os.Stat(c.SynonymsFile); err != nil {
			errors = append(errors, fmt.Sprintf("category synonyms file not readable: %v", err))
		}
	}

	if strings.TrimSpace(c.FallbackExpense) == "" || strings.TrimSpace(c.FallbackIncome) == "" {
		errors = append(errors, "fallback category names cannot be empty")
	} else if strings.EqualFold(strings.TrimSpace(c.FallbackExpense), strings.TrimSpace(c.FallbackIncome)) {
		errors = append(errors, "fallback expense and income categories must differ")
	}

	if c.CategoryCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid category cache size %d: must be at least 1", c.CategoryCacheSize))
	}
	if c.CategoryCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid category cache TTL %v: must be at least 1 second", c.CategoryCacheTTL))
	}

	if c.EvalInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid evaluation interval %v: must be at least 1 second", c.EvalInterval))
	} else if c.EvalInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid evaluation interval %v: must be at most 24 hours", c.EvalInterval))
	}

	if c.EvalConcurrency < 1 || c.EvalConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid evaluation concurrency %d: must be between 1 and 64", c.EvalConcurrency))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// roundTrips reports whether layout keeps the calendar day of a date.
func roundTrips(layout string) bool {
	ref := time.Date(2026, time.November, 23, 0, 0, 0, 0, time.UTC)
	parsed, err := time.Parse(layout, ref.Format(layout))
	if err != nil {
		return false
	}
	return parsed.Year() == ref.Year() && parsed.Month() == ref.Month() && parsed.Day() == ref.Day()
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
