package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PRECACHE_SYNC", "PRECACHE_LIMIT", "PRECACHE_PROC", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.True(t, cfg.Sync)
	assert.Equal(t, uint64(DefaultCacheLimit), cfg.CacheLimit)
	assert.Equal(t, "/proc", cfg.ProcRoot)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.OtelEnabled)
}

func TestSyncDisabled(t *testing.T) {
	t.Setenv("PRECACHE_SYNC", "0")
	assert.False(t, Load().Sync)

	t.Setenv("PRECACHE_SYNC", "1")
	assert.True(t, Load().Sync)

	t.Setenv("PRECACHE_SYNC", "false")
	assert.False(t, Load().Sync)
}

func TestCacheLimitPlainBytes(t *testing.T) {
	t.Setenv("PRECACHE_LIMIT", "123456")
	assert.Equal(t, uint64(123456), Load().CacheLimit)
}

func TestCacheLimitHumanReadable(t *testing.T) {
	t.Setenv("PRECACHE_LIMIT", "2GB")
	assert.Equal(t, uint64(2<<30), Load().CacheLimit)

	t.Setenv("PRECACHE_LIMIT", "512MB")
	assert.Equal(t, uint64(512<<20), Load().CacheLimit)
}

func TestCacheLimitGarbageFallsBack(t *testing.T) {
	t.Setenv("PRECACHE_LIMIT", "lots")
	assert.Equal(t, uint64(DefaultCacheLimit), Load().CacheLimit)
}
