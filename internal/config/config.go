// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits.
//
// API credentials are deliberately not required here — the owning client
// fails with a descriptive error on first use instead, so the service can
// boot (and serve health checks) in environments where ingestion is idle.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration for the ingest service.
type Config struct {
	Port        string `envconfig:"INGEST_PORT" default:"8083"`
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	RedisURL    string `envconfig:"REDIS_URL" required:"true"`

	JobSearchBaseURL string `envconfig:"JOBSEARCH_BASE_URL" default:"https://jsearch.p.rapidapi.com"`
	JobSearchAPIKey  string `envconfig:"JOBSEARCH_API_KEY" default:""`

	EmbeddingBaseURL string `envconfig:"EMBEDDING_BASE_URL" default:"https://api.openai.com/v1"`
	EmbeddingAPIKey  string `envconfig:"EMBEDDING_API_KEY" default:""`
	EmbeddingModel   string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`

	EmbedBatchSize int `envconfig:"EMBED_BATCH_SIZE" default:"16"`
	MaxPages       int `envconfig:"MAX_PAGES" default:"3"`

	// IngestCron is when the daily fanout fires, in standard 5-field cron
	// syntax. Default is 08:00 UTC.
	IngestCron string `envconfig:"INGEST_CRON" default:"0 8 * * *"`

	// RateLimitCooldown is how long all workers back off the job-search API
	// after any one of them gets an HTTP 429.
	RateLimitCooldown time.Duration `envconfig:"RATE_LIMIT_COOLDOWN" default:"15m"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}

	if cfg.EmbedBatchSize < 1 {
		return nil, fmt.Errorf("EMBED_BATCH_SIZE must be a positive integer, got %d", cfg.EmbedBatchSize)
	}
	if cfg.MaxPages < 1 {
		return nil, fmt.Errorf("MAX_PAGES must be a positive integer, got %d", cfg.MaxPages)
	}

	return cfg, nil
}
