package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "redis", c.Cache.Backend)
	assert.Equal(t, 8*time.Second, c.Upstream.Timeout)
	assert.Equal(t, 15*time.Second, c.Upstream.RateLimitDelay)
	assert.Equal(t, 10*time.Minute, c.Refresh.Interval)
	assert.False(t, c.RedisConfigured())
	assert.False(t, c.ClickHouse.Enabled)
	assert.False(t, c.Kafka.Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
environment: production
server:
  port: 9090
cache:
  backend: layered
  stale_ttl: 24h
  redis:
    host: redis.internal
upstream:
  rate_limit_delay: 20s
indicators:
  repo_rate:
    fallback: 2.25
    min: 0
    max: 10
    ttl: 2h
  usd_eur:
    disabled: true
`)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", c.Environment)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "layered", c.Cache.Backend)
	assert.Equal(t, 24*time.Hour, c.Cache.StaleTTL)
	assert.True(t, c.RedisConfigured())
	assert.Equal(t, 6379, c.Cache.Redis.Port, "defaults survive partial sections")
	assert.Equal(t, 20*time.Second, c.Upstream.RateLimitDelay)

	repo := c.Indicators["repo_rate"]
	require.NotNil(t, repo.Fallback)
	assert.InDelta(t, 2.25, *repo.Fallback, 1e-9)
	require.NotNil(t, repo.TTL)
	assert.Equal(t, 2*time.Hour, *repo.TTL)
	assert.True(t, c.Indicators["usd_eur"].Disabled)
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"unknown backend": "cache:\n  backend: memcached\n",
		"bad log level":   "log:\n  level: loud\n",
		"inverted range":  "indicators:\n  gdp_qoq:\n    min: 5\n    max: 1\n",
		"bad yaml":        "server: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c := Default()
	env := map[string]string{
		"PORT":                      "7000",
		"REDIS_HOST":                "cache",
		"REDIS_PASSWORD":            "secret",
		"CACHE_BACKEND":             "memory",
		"UPSTREAM_RATE_LIMIT_DELAY": "1s",
		"KAFKA_BROKERS":             "k1:9092, k2:9092",
		"CLICKHOUSE_HOST":           "ch",
		"RATE_LIMIT_ENABLED":        "false",
	}
	c.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, 7000, c.Server.Port)
	assert.Equal(t, "cache", c.Cache.Redis.Host)
	assert.Equal(t, "secret", c.Cache.Redis.Password)
	assert.Equal(t, "memory", c.Cache.Backend)
	assert.Equal(t, time.Second, c.Upstream.RateLimitDelay)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Kafka.Enabled)
	assert.True(t, c.ClickHouse.Enabled)
	assert.False(t, c.RateLimit.Enabled)
	assert.True(t, c.Metrics.Enabled)
	require.NoError(t, c.Validate())
}
