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

	assert.Equal(t, 30*time.Second, cfg.Providers.AttemptTimeout)
	assert.Equal(t, 3, cfg.Health.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Health.Window)
	assert.Equal(t, 30*time.Second, cfg.Health.Cooldown)
	assert.Equal(t, float64(120), cfg.RateLimit.Capacity)
	assert.Equal(t, float64(2), cfg.RateLimit.RefillPerSecond)
	assert.Equal(t, 180*24*time.Hour, cfg.Memory.Retention)
	assert.Equal(t, 5, cfg.Memory.SearchLimit)
	assert.InDelta(t, 0.1, cfg.Memory.MinSimilarity, 0.001)
	assert.Equal(t, "hybrid", cfg.Memory.SearchMode)
	assert.Equal(t, 7*24*time.Hour, cfg.Memory.GracePeriod)
	assert.Equal(t, "synapse_memories", cfg.Qdrant.Collection)
	assert.Equal(t, ":8080", cfg.API.ListenAddr)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SYNAPSE_API_LISTEN_ADDR", ":9090")
	t.Setenv("SYNAPSE_QDRANT_HOST", "qdrant.internal")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.API.ListenAddr)
	assert.Equal(t, "qdrant.internal", cfg.Qdrant.Host)
}

func TestValidate_Rejections(t *testing.T) {
	base := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero attempt timeout", func(c *Config) { c.Providers.AttemptTimeout = 0 }},
		{"zero failure threshold", func(c *Config) { c.Health.FailureThreshold = 0 }},
		{"zero rate capacity", func(c *Config) { c.RateLimit.Capacity = 0 }},
		{"bad search mode", func(c *Config) { c.Memory.SearchMode = "fuzzy" }},
		{"bad min similarity", func(c *Config) { c.Memory.MinSimilarity = 1.5 }},
		{"bad embedding backend", func(c *Config) { c.Embedding.Backend = "word2vec" }},
		{"empty qdrant host", func(c *Config) { c.Qdrant.Host = "" }},
		{"empty qdrant collection", func(c *Config) { c.Qdrant.Collection = "" }},
		{"unnamed profile", func(c *Config) { c.Providers.Profiles = []ProfileConfig{{Priority: 1}} }},
		{"bad profile affinity", func(c *Config) {
			c.Providers.Profiles = []ProfileConfig{{Name: "alpha", Affinities: []string{"chatty"}}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "***", maskAPIKey("short"))
	assert.Equal(t, "sk-a****wxyz", maskAPIKey("sk-abcdefgwxyz"))
}
