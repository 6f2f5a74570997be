package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://jsonplaceholder.typicode.com", cfg.Source.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Source.Timeout)
	assert.Equal(t, 4, cfg.Source.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Source.BaseDelay)
	assert.Equal(t, 5, cfg.Source.BatchConcurrency)

	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, 15*time.Minute, cfg.Sync.Interval)
	assert.False(t, cfg.Sync.Periodic)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SOURCE_BASE_URL", "http://localhost:9000")
	t.Setenv("SOURCE_MAX_ATTEMPTS", "7")
	t.Setenv("SOURCE_BASE_DELAY", "250ms")
	t.Setenv("STORAGE_TYPE", "mongodb")
	t.Setenv("SYNC_PERIODIC", "true")
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000", cfg.Source.BaseURL)
	assert.Equal(t, 7, cfg.Source.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Source.BaseDelay)
	assert.Equal(t, "mongodb", cfg.Storage.Type)
	assert.True(t, cfg.Sync.Periodic)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SOURCE_MAX_ATTEMPTS", "not-a-number")
	t.Setenv("SOURCE_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Source.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Source.Timeout)
}
