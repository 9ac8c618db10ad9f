package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "postgres", cfg.Storage.Type)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.False(t, cfg.Auth.RequireBearer)
	assert.Equal(t, 7, cfg.Watch.ExpirationDays)
	assert.Equal(t, "0 3 * * *", cfg.Watch.CronSpec)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("STORAGE_TYPE", "sqlite")
	t.Setenv("AUTH_BEARER", "true")
	t.Setenv("WATCH_EXPIRATION_DAYS", "3")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.True(t, cfg.Auth.RequireBearer)
	assert.Equal(t, 3, cfg.Watch.ExpirationDays)
	assert.Equal(t, 0, cfg.Redis.DB, "bad integer falls back to default")
}

func TestSyncConstantsPinned(t *testing.T) {
	// The batch size and call spacing are tuned as a pair against the
	// provider quota; a page of 50 at 150ms spacing stays under 10 QPS.
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(50), cfg.Sync.PageSize)
	assert.Equal(t, 150*time.Millisecond, cfg.Sync.CallDelay)
	assert.Equal(t, 5, cfg.Sync.MaxRetries)
	assert.Equal(t, 2000, cfg.Sync.MaxIterations)
	assert.Equal(t, time.Hour, cfg.Sync.MaxCoordinationAge)
}
