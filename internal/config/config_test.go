package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PORT", "")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.Port)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.Groq.Model)
	assert.Equal(t, 256, cfg.Gemini.MaxTokens)
	assert.InDelta(t, 0.1, cfg.Gemini.Temperature, 1e-9)
	assert.Equal(t, "X-RateLimit-Remaining", cfg.GitHub.RateLimit.Remaining)
	assert.False(t, cfg.Archive.Enabled)
	assert.Equal(t, time.Hour, cfg.Cache.MetadataTTL)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PORT", "9090")
	t.Setenv("GITHUB_RATELIMIT_REMAINING_HEADER", "X-Quota-Left")
	t.Setenv("WORKERS", "8")
	t.Setenv("SWEEP_STALE_AFTER", "30m")
	t.Setenv("ARTIFACT_S3_ENDPOINT", "s3.example.com")
	t.Setenv("ARTIFACT_S3_ACCESS_KEY", "ak")
	t.Setenv("ARTIFACT_S3_SECRET_KEY", "sk")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, "X-Quota-Left", cfg.GitHub.RateLimit.Remaining)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 30*time.Minute, cfg.Sweeper.StaleAfter)
	assert.True(t, cfg.Archive.Enabled)
	assert.True(t, cfg.Archive.UseSSL)
}

func TestFromEnv_LocalArchiveIsPlainText(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("ARTIFACT_MINIO_ENDPOINT", "minio:9000")
	t.Setenv("ARTIFACT_S3_ACCESS_KEY", "kiri")
	t.Setenv("ARTIFACT_S3_SECRET_KEY", "kiri123")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "minio:9000", cfg.Archive.Endpoint)
	assert.False(t, cfg.Archive.UseSSL)
}

func TestFromEnv_ParseError(t *testing.T) {
	t.Setenv("WORKERS", "many")
	_, err := FromEnv()
	assert.ErrorContains(t, err, "WORKERS")
}

func TestValidate(t *testing.T) {
	t.Setenv("WORKERS", "0")
	t.Setenv("ARTIFACT_S3_ENDPOINT", "s3.example.com")
	t.Setenv("APP_ENV", "production")
	t.Setenv("ARTIFACT_S3_ACCESS_KEY", "")
	t.Setenv("ARTIFACT_S3_SECRET_KEY", "")
	t.Setenv("MINIO_ROOT_USER", "")
	t.Setenv("MINIO_ROOT_PASSWORD", "")
	_, err := FromEnv()
	require.Error(t, err)
	assert.ErrorContains(t, err, "WORKERS")
	assert.ErrorContains(t, err, "credentials")
}

func TestNewLogger(t *testing.T) {
	cfg := &Config{Env: "production", LogLevel: "warn"}
	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1))
	assert.True(t, logger.Core().Enabled(1))

	cfg.LogLevel = "loud"
	_, err = cfg.NewLogger()
	assert.Error(t, err)
}
