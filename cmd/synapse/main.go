package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sentientmesh/synapse/internal/classifier"
	"github.com/sentientmesh/synapse/internal/config"
	"github.com/sentientmesh/synapse/internal/embedder"
	"github.com/sentientmesh/synapse/internal/health"
	"github.com/sentientmesh/synapse/internal/memory"
	"github.com/sentientmesh/synapse/internal/memstore"
	"github.com/sentientmesh/synapse/internal/models"
	"github.com/sentientmesh/synapse/internal/orchestrator"
	"github.com/sentientmesh/synapse/internal/provider"
	"github.com/sentientmesh/synapse/internal/ratelimit"
)

var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := &cobra.Command{
		Use:   "synapse",
		Short: "synapse — provider-fallback chat orchestrator with hybrid semantic memory",
		Long:  "Synapse routes chat queries across AI backends with health-aware fallback, and persists conversation memory retrieved via hybrid vector+lexical search.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
	}

	rootCmd.AddCommand(
		serveCmd(),
		chatCmd(),
		rememberCmd(),
		searchCmd(),
		forgetCmd(),
		providersCmd(),
		statsCmd(),
		sweepCmd(),
		seedCmd(),
		mcpCmd(),
	)

	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil && cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg != nil && cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newEmbedder(logger *slog.Logger) embedder.Embedder {
	if cfg.Embedding.Backend == "openai" {
		return embedder.NewOpenAIEmbedder(
			cfg.Providers.OpenAI.APIKey,
			cfg.Embedding.Model,
			cfg.Embedding.Dimension,
			logger,
		)
	}
	return embedder.NewOllamaEmbedder(
		cfg.Embedding.BaseURL,
		cfg.Embedding.Model,
		cfg.Embedding.Dimension,
		logger,
	)
}

func newStore(logger *slog.Logger) (memstore.Store, error) {
	return memstore.NewQdrantStore(
		cfg.Qdrant.Host,
		cfg.Qdrant.GRPCPort,
		cfg.Qdrant.Collection,
		uint64(cfg.Embedding.Dimension),
		cfg.Qdrant.UseTLS,
		logger,
	)
}

// defaultProfiles is the built-in provider catalog; config profiles override
// matching entries by name.
func defaultProfiles() map[string]models.ProviderProfile {
	return map[string]models.ProviderProfile{
		"anthropic": {
			Name:       "anthropic",
			Models:     []string{"claude-sonnet-4-5-20250929", "claude-haiku-4-5-20251001"},
			Affinities: []models.QueryType{models.QueryPersonal, models.QueryInstructional},
			Priority:   1,
		},
		"openai": {
			Name:       "openai",
			Models:     []string{"gpt-4o", "gpt-4o-mini"},
			Affinities: []models.QueryType{models.QueryFresh, models.QueryGeneral},
			Priority:   2,
		},
		"ollama": {
			Name:       "ollama",
			Models:     []string{"llama3.1"},
			Affinities: []models.QueryType{models.QueryGeneral},
			Priority:   3,
		},
	}
}

func resolveProfile(name string) models.ProviderProfile {
	profile := defaultProfiles()[name]
	for _, override := range cfg.Providers.Profiles {
		if override.Name != name {
			continue
		}
		if len(override.Models) > 0 {
			profile.Models = override.Models
		}
		if len(override.Affinities) > 0 {
			affinities := make([]models.QueryType, 0, len(override.Affinities))
			for _, a := range override.Affinities {
				affinities = append(affinities, models.QueryType(a))
			}
			profile.Affinities = affinities
		}
		if override.Priority != 0 {
			profile.Priority = override.Priority
		}
	}
	return profile
}

func newRegistry(logger *slog.Logger) (*provider.Registry, error) {
	var providers []provider.Provider
	if cfg.Providers.Anthropic.Enabled && cfg.Providers.Anthropic.APIKey != "" {
		providers = append(providers, provider.NewAnthropicProvider(
			cfg.Providers.Anthropic.APIKey, resolveProfile("anthropic"), logger))
	}
	if cfg.Providers.OpenAI.Enabled && cfg.Providers.OpenAI.APIKey != "" {
		providers = append(providers, provider.NewOpenAIProvider(
			cfg.Providers.OpenAI.APIKey, resolveProfile("openai"), logger))
	}
	if cfg.Providers.Ollama.Enabled {
		providers = append(providers, provider.NewOllamaProvider(
			cfg.Providers.Ollama.BaseURL, resolveProfile("ollama"), logger))
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers configured: set ANTHROPIC_API_KEY, OPENAI_API_KEY, or enable ollama")
	}
	return provider.NewRegistry(providers, logger)
}

// app bundles the wired service graph shared by the serve, chat, and mcp
// commands.
type app struct {
	store     memstore.Store
	registry  *provider.Registry
	tracker   *health.Tracker
	limiter   *ratelimit.Limiter
	writer    *memory.Writer
	retriever *memory.Retriever
	sweeper   *memory.Sweeper
	orch      *orchestrator.Orchestrator
}

func buildApp(logger *slog.Logger) (*app, error) {
	st, err := newStore(logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to store: %w", err)
	}

	registry, err := newRegistry(logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	emb := newEmbedder(logger)
	writer := memory.NewWriter(st, emb, cfg.Memory.Retention, cfg.Memory.QueueSize, cfg.Memory.Workers, logger)

	policy := memory.SearchPolicy{
		Limit:         cfg.Memory.SearchLimit,
		MinSimilarity: cfg.Memory.MinSimilarity,
		Mode:          cfg.SearchMode(),
	}
	retriever := memory.NewRetriever(st, emb, policy, cfg.Memory.Retention, logger)
	sweeper := memory.NewSweeper(st, cfg.Memory.SweepInterval, cfg.Memory.GracePeriod, logger)

	tracker := health.NewTracker(health.Policy{
		FailureThreshold: cfg.Health.FailureThreshold,
		Window:           cfg.Health.Window,
		Cooldown:         cfg.Health.Cooldown,
	}, logger)

	overrides := make(map[string]ratelimit.BucketConfig, len(cfg.RateLimit.Overrides))
	for name, o := range cfg.RateLimit.Overrides {
		overrides[name] = ratelimit.BucketConfig{Capacity: o.Capacity, RefillPerSecond: o.RefillPerSecond}
	}
	limiter := ratelimit.NewLimiter(ratelimit.BucketConfig{
		Capacity:        cfg.RateLimit.Capacity,
		RefillPerSecond: cfg.RateLimit.RefillPerSecond,
	}, overrides, logger)

	var distiller *memory.Distiller
	if cfg.Memory.Distill && cfg.Providers.Anthropic.APIKey != "" {
		distiller = memory.NewDistiller(cfg.Providers.Anthropic.APIKey, cfg.Providers.Anthropic.DistillModel, logger)
	}

	orch := orchestrator.New(
		classifier.NewClassifier(logger),
		registry, tracker, limiter, retriever, writer, distiller,
		orchestrator.Options{
			AttemptTimeout: cfg.Providers.AttemptTimeout,
			MemoryBudget:   cfg.Memory.TokenBudget,
		},
		logger,
	)

	return &app{
		store:     st,
		registry:  registry,
		tracker:   tracker,
		limiter:   limiter,
		writer:    writer,
		retriever: retriever,
		sweeper:   sweeper,
		orch:      orch,
	}, nil
}

// Close drains the write queue and releases the store connection.
func (a *app) Close() {
	a.writer.Close()
	_ = a.store.Close()
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return s
}
