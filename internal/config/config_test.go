package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CATALOG_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "http", cfg.Source.Fetcher)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.True(t, cfg.Cache.SingleFlight)
	assert.Equal(t, 3, cfg.Source.FeaturedCount)
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
  cors_origins: ["https://homes.example.in"]
source:
  base_url: ${SHEETS_HOST}/exec
  fetcher: colly
cache:
  ttl: 2m
  backend: redis
  redis_addr: localhost:6379
`), 0o644))

	t.Setenv("SHEETS_HOST", "https://script.example.com")
	t.Setenv("CATALOG_CONFIG", path)
	t.Setenv("PORT", "9100")
	t.Setenv("CORS_ORIGINS", "https://a.example.in,https://b.example.in")
	t.Setenv("CACHE_SINGLE_FLIGHT", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port, "environment wins over the file")
	assert.Equal(t, []string{"https://a.example.in", "https://b.example.in"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "https://script.example.com/exec", cfg.Source.BaseURL)
	assert.Equal(t, "colly", cfg.Source.Fetcher)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.False(t, cfg.Cache.SingleFlight)
	// Untouched by file and environment
	assert.Equal(t, 5, cfg.Source.Parallelism)
	assert.Zero(t, cfg.Source.MaxRetries, "fetch tuning is left to the registry")
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("CATALOG_CONFIG", "")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("CATALOG_FETCHER", "curl")
	t.Setenv("LOG_LEVEL", "chatty")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis_addr")
	assert.Contains(t, err.Error(), "curl")
	assert.Contains(t, err.Error(), "chatty")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestNewLogger(t *testing.T) {
	l := LogConfig{Level: "debug", Format: "text"}.NewLogger()
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, l.Formatter)

	l = LogConfig{Level: "warn", Format: "json"}.NewLogger()
	assert.Equal(t, logrus.WarnLevel, l.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)
}
