package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admission-gateway/middleware/ratelimit/domain"
)

var allKeys = []string{
	"LISTEN_ADDR", "UPSTREAM_URL", "LOG_LEVEL", "CANONICAL_HOST",
	"RATE_ENABLED", "RATE_BACKEND", "RATE_API_PREFIX", "RATE_DEFAULT", "RATE_ROUTES",
	"RATE_EXEMPT", "RATE_IDENTIFIER_HEADERS", "RATE_SWEEP_EVERY", "RATE_MAX_ENTRIES",
	"RATE_REDIS_PREFIX", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"RATE_STATS_ENABLED", "RATE_STATS_BACKEND", "RATE_STATS_PREFIX", "RATE_STATS_TTL",
	"RATE_STATS_BUCKET", "RATE_STATS_TRACK_KEYS", "CONCURRENCY_MAX", "CONCURRENCY_TIMEOUT",
}

// cleanEnv remove as variáveis do processo e restaura no fim do teste.
func cleanEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cleanEnv(t)
	t.Setenv("UPSTREAM_URL", "http://127.0.0.1:3000")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "127.0.0.1:3000", cfg.UpstreamURL.Host)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)

	assert.True(t, cfg.Rate.Enabled)
	assert.Equal(t, BackendMemory, cfg.Rate.Backend)
	assert.Equal(t, time.Minute, cfg.Rate.SweepEvery)
	assert.Equal(t, 100_000, cfg.Rate.MaxEntries)
	assert.Equal(t, "/api/", cfg.Rate.Policy.APIPrefix)
	assert.Equal(t, domain.Rule{MaxRequests: 30, Window: time.Minute}, cfg.Rate.Policy.Default)
	require.Len(t, cfg.Rate.Policy.Routes, 2)
	assert.Equal(t, "/api/checkout", cfg.Rate.Policy.Routes[0].Prefix)
	assert.Equal(t, 10, cfg.Rate.Policy.Routes[0].Rule.MaxRequests)
	assert.Equal(t, []string{"/api/webhooks/stripe"}, cfg.Rate.Policy.Exempt)

	assert.False(t, cfg.Stats.Enabled)
	assert.Equal(t, 100, cfg.Concurrency.Max)
	assert.Zero(t, cfg.Concurrency.Timeout)
	assert.False(t, cfg.UsesRedis())
}

func TestFromEnv_Overrides(t *testing.T) {
	cleanEnv(t)
	t.Setenv("UPSTREAM_URL", "https://app.internal")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RATE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("RATE_DEFAULT", "100:1m")
	t.Setenv("RATE_ROUTES", "/api/checkout:5:30s, /api/export:2:1h")
	t.Setenv("RATE_EXEMPT", "/api/webhooks/stripe,/api/health")
	t.Setenv("RATE_IDENTIFIER_HEADERS", "CF-Connecting-IP")
	t.Setenv("RATE_SWEEP_EVERY", "0")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, BackendRedis, cfg.Rate.Backend)
	assert.True(t, cfg.UsesRedis())
	assert.Equal(t, domain.Rule{MaxRequests: 100, Window: time.Minute}, cfg.Rate.Policy.Default)
	require.Len(t, cfg.Rate.Policy.Routes, 2)
	assert.Equal(t, "/api/export", cfg.Rate.Policy.Routes[1].Prefix)
	assert.Equal(t, domain.Rule{MaxRequests: 2, Window: time.Hour}, cfg.Rate.Policy.Routes[1].Rule)
	assert.Equal(t, []string{"/api/webhooks/stripe", "/api/health"}, cfg.Rate.Policy.Exempt)
	assert.Equal(t, []string{"CF-Connecting-IP"}, cfg.Rate.Policy.IdentifierHeaders)
	assert.Zero(t, cfg.Rate.SweepEvery)
}

func TestFromEnv_InvalidValuesAreErrors(t *testing.T) {
	cleanEnv(t)
	t.Setenv("UPSTREAM_URL", "http://127.0.0.1:3000")
	t.Setenv("RATE_MAX_ENTRIES", "lots")
	t.Setenv("RATE_BACKEND", "memcached")

	_, err := FromEnv()
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, err.Error(), "RATE_MAX_ENTRIES")
	assert.Contains(t, err.Error(), "RATE_BACKEND")
}

func TestFromEnv_RequiresUpstream(t *testing.T) {
	cleanEnv(t)

	_, err := FromEnv()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "UPSTREAM_URL", verr.Key)
}

func TestFromEnv_RedisBackendRequiresAddr(t *testing.T) {
	cleanEnv(t)
	t.Setenv("UPSTREAM_URL", "http://127.0.0.1:3000")
	t.Setenv("RATE_STATS_ENABLED", "true")
	t.Setenv("RATE_STATS_BACKEND", "redis")

	_, err := FromEnv()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "REDIS_ADDR", verr.Key)
}

func TestParseRule(t *testing.T) {
	r, err := ParseRule("25:60s")
	require.NoError(t, err)
	assert.Equal(t, domain.Rule{MaxRequests: 25, Window: time.Minute}, r)

	for _, bad := range []string{"25", "x:60s", "25:forever", "0:60s", "10:0s"} {
		_, err := ParseRule(bad)
		assert.Error(t, err, bad)
	}

	_, err = ParseRule("-1:1s")
	assert.ErrorIs(t, err, domain.ErrInvalidRule)
}

func TestParseRoutes(t *testing.T) {
	routes, err := ParseRoutes("")
	require.NoError(t, err)
	assert.Empty(t, routes)

	_, err = ParseRoutes("/api/checkout:10")
	assert.Error(t, err)

	_, err = ParseRoutes("api/checkout:10:60s")
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	cleanEnv(t)
	dir := t.TempDir()

	require.NoError(t, loadDotEnv(filepath.Join(dir, "missing.env")), "missing file is fine")

	good := filepath.Join(dir, "good.env")
	require.NoError(t, os.WriteFile(good, []byte("UPSTREAM_URL=http://127.0.0.1:3000\n"), 0o600))
	require.NoError(t, loadDotEnv(good))
	assert.Equal(t, "http://127.0.0.1:3000", os.Getenv("UPSTREAM_URL"))

	bad := filepath.Join(dir, "bad.env")
	require.NoError(t, os.WriteFile(bad, []byte("BAD!KEY=1\n"), 0o600))
	err := loadDotEnv(bad)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, bad, verr.Key)
}
