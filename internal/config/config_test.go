package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func setRequired(t *testing.T) {
	t.Helper()
	for k, v := range map[string]string{
		"DB_USER":        "estate",
		"DB_HOST":        "127.0.0.1",
		"DB_NAME":        "estate_ledger",
		"JWT_SECRET":     "change-me",
		"ADMIN_EMAIL":    "root@estate.io",
		"ADMIN_PASSWORD": "admin-pw",
	} {
		t.Setenv(k, v)
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "3306", cfg.DBPort)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, "Administrator", cfg.AdminName)
	assert.True(t, cfg.Broker.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "5")
	t.Setenv("REFRESH_TOKEN_TTL_DAYS", "1")
	t.Setenv("STORE_TIMEOUT", "2s")
	t.Setenv("STORE_RETRY_BACKOFF", "not-a-duration")
	t.Setenv("EVENTS_ENABLED", "off")
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("AMQP_URL", "amqp://broker:5672/")

	cfg := Load()
	assert.Equal(t, 5*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, 2*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.RetryBackoff, "invalid values fall back to the default")
	assert.False(t, cfg.Broker.Enabled)
	assert.Equal(t, "amqp://broker:5672/", cfg.Broker.URL)

	t.Setenv("RABBITMQ_URL", "amqp://primary:5672/")
	assert.Equal(t, "amqp://primary:5672/", LoadBrokerConfig().URL)
}

func TestLoadRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_TOKENS", "-3")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	rl := LoadRateLimitConfig()
	assert.Equal(t, 1, rl.Capacity)
	assert.Equal(t, 1, rl.RefillTokens)
	assert.Equal(t, 10*time.Second, rl.TTL)
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	t.Setenv("CACHE_PREFIX", "test:cache")

	c := LoadCacheConfig()
	assert.True(t, c.Enabled)
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, c.Methods)
	assert.Equal(t, "test:cache", c.Prefix)
}

func TestLoadRedisConfig(t *testing.T) {
	t.Setenv("REDIS_HOST", "")
	t.Setenv("REDIS_ADDR", "cache:6379")
	assert.Equal(t, "cache:6379", LoadRedisConfig().Addr)

	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_TLS", "true")
	r := LoadRedisConfig()
	assert.Equal(t, "redis:6380", r.Addr)
	assert.True(t, r.TLS)
}
