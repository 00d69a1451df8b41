package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/ingest")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, 3, cfg.MaxPages)
	assert.Equal(t, 16, cfg.EmbedBatchSize)
	assert.Equal(t, "0 8 * * *", cfg.IngestCron)
	assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
	assert.Equal(t, 15*time.Minute, cfg.RateLimitCooldown)
	assert.Empty(t, cfg.JobSearchAPIKey, "credentials are not required at boot")
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("MAX_PAGES", "5")
	t.Setenv("EMBED_BATCH_SIZE", "32")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxPages)
	assert.Equal(t, 32, cfg.EmbedBatchSize)
}

func TestLoad_RejectsNonPositiveMaxPages(t *testing.T) {
	setRequired(t)
	t.Setenv("MAX_PAGES", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_PAGES")
}
