package provider

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentientmesh/synapse/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	anthropic := NewFakeProvider(models.ProviderProfile{
		Name:       "anthropic",
		Models:     []string{"claude-sonnet", "claude-haiku"},
		Affinities: []models.QueryType{models.QueryPersonal, models.QueryInstructional},
		Priority:   1,
	})
	oai := NewFakeProvider(models.ProviderProfile{
		Name:       "openai",
		Models:     []string{"gpt-4o-mini"},
		Affinities: []models.QueryType{models.QueryFresh, models.QueryGeneral},
		Priority:   2,
	})
	ollama := NewFakeProvider(models.ProviderProfile{
		Name:       "ollama",
		Models:     []string{"llama3"},
		Affinities: []models.QueryType{models.QueryGeneral},
		Priority:   3,
	})

	r, err := NewRegistry([]Provider{oai, ollama, anthropic}, testLogger())
	require.NoError(t, err)
	return r
}

func chainNames(chain []Candidate) []string {
	names := make([]string, len(chain))
	for i, c := range chain {
		names[i] = c.Name()
	}
	return names
}

func TestChain_AffinityOrdering(t *testing.T) {
	r := testRegistry(t)

	chain := r.Chain(models.QueryGeneral, "", "")
	// Affinity matches first (openai prio 2, ollama prio 3), then the rest.
	assert.Equal(t, []string{"openai", "ollama", "anthropic"}, chainNames(chain))
}

func TestChain_PersonalPrefersAnthropic(t *testing.T) {
	r := testRegistry(t)

	chain := r.Chain(models.QueryPersonal, "", "")
	assert.Equal(t, []string{"anthropic", "openai", "ollama"}, chainNames(chain))
}

func TestChain_Deterministic(t *testing.T) {
	r := testRegistry(t)

	first := chainNames(r.Chain(models.QueryFresh, "", ""))
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, chainNames(r.Chain(models.QueryFresh, "", "")))
	}
}

func TestChain_ExplicitProviderFirst(t *testing.T) {
	r := testRegistry(t)

	chain := r.Chain(models.QueryGeneral, "ollama", "llama3")
	require.NotEmpty(t, chain)
	assert.Equal(t, "ollama", chain[0].Name())
	assert.Equal(t, "llama3", chain[0].Model)
	// No duplicates later in the chain.
	assert.Equal(t, []string{"ollama", "openai", "anthropic"}, chainNames(chain))
}

func TestChain_ExplicitModelHonoredWhenDeclared(t *testing.T) {
	r := testRegistry(t)

	chain := r.Chain(models.QueryGeneral, "anthropic", "claude-haiku")
	assert.Equal(t, "claude-haiku", chain[0].Model)

	// Undeclared model falls back to the provider default.
	chain = r.Chain(models.QueryGeneral, "anthropic", "no-such-model")
	assert.Equal(t, "claude-sonnet", chain[0].Model)
}

func TestChain_UnknownExplicitProviderIgnored(t *testing.T) {
	r := testRegistry(t)

	chain := r.Chain(models.QueryGeneral, "nope", "")
	assert.Equal(t, []string{"openai", "ollama", "anthropic"}, chainNames(chain))
}

func TestRegistry_DuplicateName(t *testing.T) {
	a := NewFakeProvider(models.ProviderProfile{Name: "dup", Models: []string{"m"}})
	b := NewFakeProvider(models.ProviderProfile{Name: "dup", Models: []string{"m"}})
	_, err := NewRegistry([]Provider{a, b}, testLogger())
	assert.Error(t, err)
}
