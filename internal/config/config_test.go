package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "ses", cfg.Transport.Provider)
	assert.Equal(t, "us-east-1", cfg.Transport.SES.Region)
	assert.Equal(t, 5, cfg.Engine.Concurrency)
	assert.Equal(t, 3, cfg.Engine.MaxRetries)
	assert.Equal(t, time.Second, cfg.Engine.JobDelay())
	assert.Equal(t, 30*time.Second, cfg.Engine.BackoffUnit())
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.PollInterval())
	assert.Equal(t, 24*time.Hour, cfg.Engine.Retention())
	assert.Equal(t, "info", cfg.Logging.Level)
	require.NotNil(t, cfg.Logging.RedactPII)
	assert.True(t, *cfg.Logging.RedactPII)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
  allowed_origins: ["https://app.example.com"]
database:
  url: "postgres://mail:secret@db/mailblast?sslmode=disable"
redis:
  addr: "redis:6379"
transport:
  provider: sparkpost
  sparkpost:
    api_key: "sp-key"
engine:
  concurrency: 10
  max_retries: 1
  backoff_seconds: 5
  rate_per_minute: 600
logging:
  level: debug
  redact_pii: false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "sparkpost", cfg.Transport.Provider)
	assert.Equal(t, "sp-key", cfg.Transport.SparkPost.APIKey)
	assert.Equal(t, 10, cfg.Engine.Concurrency)
	assert.Equal(t, 1, cfg.Engine.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Engine.BackoffUnit())
	assert.Equal(t, 600, cfg.Engine.RatePerMinute)
	assert.Equal(t, "debug", cfg.Logging.Level)
	require.NotNil(t, cfg.Logging.RedactPII)
	assert.False(t, *cfg.Logging.RedactPII)
}

func TestLoad_PartialYAMLKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  concurrency: 2\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Engine.Concurrency)
	assert.Equal(t, 3, cfg.Engine.MaxRetries, "untouched keys keep defaults")
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":7070")
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("MAIL_PROVIDER", "sparkpost")
	t.Setenv("SPARKPOST_API_KEY", "env-key")
	t.Setenv("ENGINE_CONCURRENCY", "8")
	t.Setenv("ENGINE_MAX_RETRIES", "0")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "postgres://env", cfg.Database.URL)
	assert.Equal(t, "sparkpost", cfg.Transport.Provider)
	assert.Equal(t, "env-key", cfg.Transport.SparkPost.APIKey)
	assert.Equal(t, 8, cfg.Engine.Concurrency)
	assert.Equal(t, 0, cfg.Engine.MaxRetries)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9090\"\n"), 0o644))
	t.Setenv("SERVER_ADDR", ":7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [bad\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
