package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8003, cfg.HTTPPort)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, 168, cfg.CartTTL)
	assert.Equal(t, 30, cfg.SessionIdleTTL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("CART_HTTP_PORT", "9000")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")
	t.Setenv("CART_TTL_HOURS", "24")
	t.Setenv("SESSION_IDLE_MINUTES", "10")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, "redis.internal:6379", cfg.RedisAddr)
	assert.Equal(t, 24, cfg.CartTTL)
	assert.Equal(t, 10, cfg.SessionIdleTTL)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("CART_HTTP_PORT", "70000")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
}

func TestLoad_InvalidCartTTL(t *testing.T) {
	t.Setenv("CART_TTL_HOURS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cart TTL")
}

func TestLoad_InvalidSessionIdleTTL(t *testing.T) {
	t.Setenv("SESSION_IDLE_MINUTES", "-5")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid session idle TTL")
}
