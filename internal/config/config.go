package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port      string
	Debug     bool
	LogFormat string // "json" or "text"

	// Mention store
	StorageDriver string
	SQLitePath    string
	PostgresURL   string

	// Azure Storage archive, disabled when StorageAccount is empty
	StorageAccount   string
	StorageContainer string

	// API Keys and credentials
	RedditClientID     string
	RedditClientSecret string
	TwitterBearerToken string

	// Saved searches for scheduled ingestion
	Feeds            []string
	HNQueries        []string
	MastodonInstance string
	MastodonQueries  []string
	RedditQueries    []string

	// Schedule configuration
	IngestSchedule    string // cron expression with seconds, empty disables
	IngestConcurrency int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		Debug:     getBoolEnv("DEBUG", false),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		StorageDriver: getEnv("STORAGE_DRIVER", "sqlite"),
		SQLitePath:    getEnv("SQLITE_PATH", "social_listening.db"),
		PostgresURL:   getEnv("POSTGRES_URL", ""),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "mentions"),

		RedditClientID:     getEnv("REDDIT_CLIENT_ID", ""),
		RedditClientSecret: getEnv("REDDIT_CLIENT_SECRET", ""),
		TwitterBearerToken: getEnv("TWITTER_BEARER_TOKEN", ""),

		Feeds:            getSliceEnv("FEEDS", nil),
		HNQueries:        getSliceEnv("HN_QUERIES", nil),
		MastodonInstance: getEnv("MASTODON_INSTANCE", "mastodon.social"),
		MastodonQueries:  getSliceEnv("MASTODON_QUERIES", nil),
		RedditQueries:    getSliceEnv("REDDIT_QUERIES", nil),

		IngestSchedule:    lookupEnv("INGEST_SCHEDULE", "0 */30 * * * *"),
		IngestConcurrency: getIntEnv("INGEST_CONCURRENCY", 4),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("STORAGE_DRIVER must be 'sqlite', 'postgres' or 'memory'")
	}

	if c.StorageDriver == "postgres" && c.PostgresURL == "" {
		return fmt.Errorf("POSTGRES_URL is required when STORAGE_DRIVER is 'postgres'")
	}

	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be 'json' or 'text'")
	}

	if c.IngestConcurrency < 1 {
		return fmt.Errorf("INGEST_CONCURRENCY must be at least 1")
	}

	if c.IngestSchedule != "" {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(c.IngestSchedule); err != nil {
			return fmt.Errorf("INGEST_SCHEDULE is not a valid cron expression: %w", err)
		}
	}

	return nil
}

// HasSavedSearches reports whether scheduled ingestion has anything to do.
func (c *Config) HasSavedSearches() bool {
	return len(c.Feeds)+len(c.HNQueries)+len(c.MastodonQueries)+len(c.RedditQueries) > 0
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// lookupEnv is getEnv for keys where an explicit empty value is meaningful.
func lookupEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
