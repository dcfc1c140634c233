package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_DefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(path, []byte(`
cache:
  backend: lru
  maxEntries: 500
cortex:
  coalesceInFlight: true
`), 0o600)
	require.NoError(t, err)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "lru", cfg.Cache.Backend)
	assert.Equal(t, 500, cfg.Cache.MaxEntries)
	assert.Equal(t, 60*time.Second, cfg.Cache.TTL())
	assert.True(t, cfg.Cortex.CoalesceInFlight)
	assert.InDelta(t, 0.15, cfg.Cortex.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 3*time.Second, cfg.Grounding.Timeout())
	assert.Equal(t, 2, cfg.Grounding.MaxRetries)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFile_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o600))

	t.Setenv("CORTEX_CACHE_TTLSECONDS", "120")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, cfg.Cache.TTL())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.Cache.Backend = "memcached" }, wantErr: true},
		{name: "zero ttl", mutate: func(c *Config) { c.Cache.TTLSeconds = 0 }, wantErr: true},
		{name: "lru without cap", mutate: func(c *Config) { c.Cache.Backend = "lru"; c.Cache.MaxEntries = 0 }, wantErr: true},
		{name: "threshold above one", mutate: func(c *Config) { c.Cortex.ConfidenceThreshold = 1.5 }, wantErr: true},
		{name: "events without brokers", mutate: func(c *Config) { c.Events.Enabled = true }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Cache:  CacheConfig{Backend: "memory", TTLSeconds: 60},
				Cortex: CortexConfig{ConfidenceThreshold: 0.15},
				Events: EventsConfig{Topic: "t"},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
