package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.ServerAddr)
	assert.Empty(t, cfg.StorageBackend)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 15*time.Second, cfg.RouteTimeout)
	assert.Equal(t, 50*time.Millisecond, cfg.FrameInterval)
	assert.Equal(t, 5*time.Second, cfg.PersistInterval)
	assert.NotEmpty(t, cfg.OSRMBaseURL)
	assert.NotEmpty(t, cfg.NominatimBaseURL)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_ADDR", "127.0.0.1:0")
	t.Setenv("STORAGE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("ROUTE_TIMEOUT", "10s")
	t.Setenv("PERSIST_INTERVAL", "1m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:0", cfg.ServerAddr)
	assert.Equal(t, "redis", cfg.StorageBackend)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 10*time.Second, cfg.RouteTimeout)
	assert.Equal(t, time.Minute, cfg.PersistInterval)
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FRAME_INTERVAL", "often")

	_, err := Load()
	assert.Error(t, err)
}
