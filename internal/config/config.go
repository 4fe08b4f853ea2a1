// Package config loads synapse configuration from file, environment, and
// defaults, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/sentientmesh/synapse/internal/models"
)

// Config holds all configuration for synapse.
type Config struct {
	Providers ProvidersConfig `mapstructure:"providers"`
	Health    HealthConfig    `mapstructure:"health"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	API       APIConfig       `mapstructure:"api"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ProvidersConfig holds the backend catalog and dispatch settings.
type ProvidersConfig struct {
	AttemptTimeout time.Duration    `mapstructure:"attempt_timeout"`
	Anthropic      AnthropicConfig  `mapstructure:"anthropic"`
	OpenAI         OpenAIConfig     `mapstructure:"openai"`
	Ollama         OllamaChatConfig `mapstructure:"ollama"`
	Profiles       []ProfileConfig  `mapstructure:"profiles"`
}

// ProfileConfig overrides one provider's catalog entry.
type ProfileConfig struct {
	Name       string   `mapstructure:"name"`
	Models     []string `mapstructure:"models"`
	Affinities []string `mapstructure:"affinities"`
	Priority   int      `mapstructure:"priority"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey       string `mapstructure:"api_key"`
	Enabled      bool   `mapstructure:"enabled"`
	DistillModel string `mapstructure:"distill_model"`
}

// String returns a safe representation with the API key masked.
func (c AnthropicConfig) String() string {
	return fmt.Sprintf("AnthropicConfig{APIKey:%s, Enabled:%t}", maskAPIKey(c.APIKey), c.Enabled)
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Enabled bool   `mapstructure:"enabled"`
}

// String returns a safe representation with the API key masked.
func (c OpenAIConfig) String() string {
	return fmt.Sprintf("OpenAIConfig{APIKey:%s, Enabled:%t}", maskAPIKey(c.APIKey), c.Enabled)
}

// OllamaChatConfig holds local Ollama chat backend settings.
type OllamaChatConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Enabled bool   `mapstructure:"enabled"`
}

// HealthConfig holds provider health tracking settings.
type HealthConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	Window           time.Duration `mapstructure:"window"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// RateLimitConfig holds per-(user, provider) token bucket settings.
type RateLimitConfig struct {
	Capacity        float64                   `mapstructure:"capacity"`
	RefillPerSecond float64                   `mapstructure:"refill_per_second"`
	Overrides       map[string]BucketOverride `mapstructure:"overrides"`
}

// BucketOverride is one provider's bucket override.
type BucketOverride struct {
	Capacity        float64 `mapstructure:"capacity"`
	RefillPerSecond float64 `mapstructure:"refill_per_second"`
}

// MemoryConfig holds write, retrieval, and sweep settings.
type MemoryConfig struct {
	Retention     time.Duration `mapstructure:"retention"`
	QueueSize     int           `mapstructure:"queue_size"`
	Workers       int           `mapstructure:"workers"`
	SearchLimit   int           `mapstructure:"search_limit"`
	MinSimilarity float64       `mapstructure:"min_similarity"`
	SearchMode    string        `mapstructure:"search_mode"`
	TokenBudget   int           `mapstructure:"token_budget"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	GracePeriod   time.Duration `mapstructure:"grace_period"`
	Distill       bool          `mapstructure:"distill"`
}

// EmbeddingConfig selects and configures the embedding backend.
type EmbeddingConfig struct {
	Backend   string `mapstructure:"backend"` // "ollama" or "openai"
	Model     string `mapstructure:"model"`
	Dimension int    `mapstructure:"dimension"`
	BaseURL   string `mapstructure:"base_url"` // ollama only
}

// QdrantConfig holds Qdrant vector database connection settings.
type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	GRPCPort   int    `mapstructure:"grpc_port"`
	Collection string `mapstructure:"collection"`
	UseTLS     bool   `mapstructure:"use_tls"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	AuthToken  string `mapstructure:"auth_token"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// maskAPIKey shows first 4 + last 4 chars, replacing the middle with asterisks.
func maskAPIKey(key string) string {
	const visible = 4
	if len(key) <= visible*2 {
		return "***"
	}
	return key[:visible] + "****" + key[len(key)-visible:]
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("providers.attempt_timeout", "30s")
	v.SetDefault("providers.anthropic.enabled", true)
	v.SetDefault("providers.anthropic.distill_model", "claude-haiku-4-5-20251001")
	v.SetDefault("providers.openai.enabled", true)
	v.SetDefault("providers.ollama.enabled", false)
	v.SetDefault("providers.ollama.base_url", "http://localhost:11434")

	v.SetDefault("health.failure_threshold", 3)
	v.SetDefault("health.window", "60s")
	v.SetDefault("health.cooldown", "30s")

	// Generous on purpose: the limiter protects upstream quota, it is not a
	// throttle on normal interactive usage.
	v.SetDefault("ratelimit.capacity", 120)
	v.SetDefault("ratelimit.refill_per_second", 2)

	v.SetDefault("memory.retention", "4320h") // 180 days
	v.SetDefault("memory.queue_size", 128)
	v.SetDefault("memory.workers", 2)
	v.SetDefault("memory.search_limit", 5)
	v.SetDefault("memory.min_similarity", 0.1)
	v.SetDefault("memory.search_mode", "hybrid")
	v.SetDefault("memory.token_budget", 1000)
	v.SetDefault("memory.sweep_interval", "1h")
	v.SetDefault("memory.grace_period", "168h") // 7 days
	v.SetDefault("memory.distill", false)

	v.SetDefault("embedding.backend", "ollama")
	v.SetDefault("embedding.model", "nomic-embed-text")
	v.SetDefault("embedding.dimension", 768)
	v.SetDefault("embedding.base_url", "http://localhost:11434")

	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.grpc_port", 6334)
	v.SetDefault("qdrant.collection", "synapse_memories")
	v.SetDefault("qdrant.use_tls", false)

	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.auth_token", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(homeDir(), ".synapse"))
	v.AddConfigPath(".")

	// Environment variables
	v.SetEnvPrefix("SYNAPSE")
	v.AutomaticEnv()

	// Map specific env vars
	_ = v.BindEnv("providers.anthropic.api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("providers.openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("qdrant.host", "SYNAPSE_QDRANT_HOST")
	_ = v.BindEnv("qdrant.grpc_port", "SYNAPSE_QDRANT_GRPC_PORT")
	_ = v.BindEnv("embedding.base_url", "SYNAPSE_EMBEDDING_BASE_URL")
	_ = v.BindEnv("api.listen_addr", "SYNAPSE_API_LISTEN_ADDR")
	_ = v.BindEnv("api.auth_token", "SYNAPSE_API_AUTH_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK — use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are set and consistent.
func (c *Config) Validate() error {
	if c.Providers.AttemptTimeout <= 0 {
		return fmt.Errorf("providers.attempt_timeout must be greater than 0")
	}
	if c.Health.FailureThreshold <= 0 {
		return fmt.Errorf("health.failure_threshold must be greater than 0")
	}
	if c.Health.Window <= 0 || c.Health.Cooldown <= 0 {
		return fmt.Errorf("health.window and health.cooldown must be greater than 0")
	}
	if c.RateLimit.Capacity <= 0 || c.RateLimit.RefillPerSecond <= 0 {
		return fmt.Errorf("ratelimit.capacity and ratelimit.refill_per_second must be greater than 0")
	}
	if c.Memory.Retention <= 0 {
		return fmt.Errorf("memory.retention must be greater than 0")
	}
	if c.Memory.SearchLimit <= 0 {
		return fmt.Errorf("memory.search_limit must be greater than 0")
	}
	if c.Memory.MinSimilarity < 0 || c.Memory.MinSimilarity > 1 {
		return fmt.Errorf("memory.min_similarity must be between 0 and 1")
	}
	if mode := models.SearchMode(c.Memory.SearchMode); !mode.IsValid() {
		return fmt.Errorf("memory.search_mode must be one of vector, lexical, hybrid")
	}
	if c.Embedding.Backend != "ollama" && c.Embedding.Backend != "openai" {
		return fmt.Errorf("embedding.backend must be ollama or openai")
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be greater than 0")
	}
	if c.Qdrant.Host == "" {
		return fmt.Errorf("qdrant.host must not be empty")
	}
	if c.Qdrant.Collection == "" {
		return fmt.Errorf("qdrant.collection must not be empty")
	}
	for _, p := range c.Providers.Profiles {
		if p.Name == "" {
			return fmt.Errorf("providers.profiles entries must have a name")
		}
		for _, a := range p.Affinities {
			if !models.QueryType(a).IsValid() {
				return fmt.Errorf("providers.profiles[%s]: unknown affinity %q", p.Name, a)
			}
		}
	}
	return nil
}

// SearchMode returns the configured retrieval mode.
func (c *Config) SearchMode() models.SearchMode {
	return models.SearchMode(c.Memory.SearchMode)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
