package provider

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/sentientmesh/synapse/internal/models"
)

// Candidate is one (provider, model) pair in a fallback chain.
type Candidate struct {
	Provider Provider
	Model    string
}

// Name returns the candidate's provider name.
func (c Candidate) Name() string { return c.Provider.Profile().Name }

// Registry is the static catalog of registered backends. It is populated
// once at startup and read-only afterwards; chain selection is pure and
// deterministic given the same inputs.
type Registry struct {
	providers map[string]Provider
	ordered   []Provider // by Priority asc, then Name asc
	logger    *slog.Logger
}

// NewRegistry creates a registry over the given providers.
func NewRegistry(providers []Provider, logger *slog.Logger) (*Registry, error) {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		name := p.Profile().Name
		if name == "" {
			return nil, fmt.Errorf("registry: provider with empty name")
		}
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("registry: duplicate provider %q", name)
		}
		byName[name] = p
	}

	ordered := make([]Provider, len(providers))
	copy(ordered, providers)
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := ordered[i].Profile(), ordered[j].Profile()
		if pi.Priority != pj.Priority {
			return pi.Priority < pj.Priority
		}
		return pi.Name < pj.Name
	})

	return &Registry{providers: byName, ordered: ordered, logger: logger}, nil
}

// Get returns the provider with the given name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names returns all registered provider names, in chain order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ordered))
	for _, p := range r.ordered {
		names = append(names, p.Profile().Name)
	}
	return names
}

// Chain builds the ordered candidate list for one classified query:
// an explicit provider/model request first (when registered), then providers
// whose affinities include the query type, then everything else. Within each
// group the order is Priority ascending, then Name ascending, so the chain
// is identical on repeated calls with the same inputs. Health and rate
// checks are the orchestrator's job; the chain itself never consults them.
func (r *Registry) Chain(queryType models.QueryType, explicitProvider, explicitModel string) []Candidate {
	var chain []Candidate
	seen := make(map[string]bool, len(r.ordered))

	if explicitProvider != "" {
		if p, ok := r.providers[explicitProvider]; ok {
			chain = append(chain, Candidate{Provider: p, Model: resolveModel(p, explicitModel)})
			seen[explicitProvider] = true
		} else if r.logger != nil {
			r.logger.Warn("explicit provider not registered, falling back to affinity order",
				"provider", explicitProvider)
		}
	}

	for _, p := range r.ordered {
		profile := p.Profile()
		if seen[profile.Name] || !hasAffinity(profile, queryType) {
			continue
		}
		chain = append(chain, Candidate{Provider: p, Model: defaultModel(profile)})
		seen[profile.Name] = true
	}

	for _, p := range r.ordered {
		profile := p.Profile()
		if seen[profile.Name] {
			continue
		}
		chain = append(chain, Candidate{Provider: p, Model: defaultModel(profile)})
		seen[profile.Name] = true
	}

	return chain
}

// resolveModel honors an explicitly requested model when the provider
// declares it; otherwise the provider's default model is used.
func resolveModel(p Provider, requested string) string {
	profile := p.Profile()
	if requested != "" {
		for _, m := range profile.Models {
			if m == requested {
				return requested
			}
		}
	}
	return defaultModel(profile)
}

func defaultModel(profile models.ProviderProfile) string {
	if len(profile.Models) > 0 {
		return profile.Models[0]
	}
	return ""
}

func hasAffinity(profile models.ProviderProfile, qt models.QueryType) bool {
	for _, a := range profile.Affinities {
		if a == qt {
			return true
		}
	}
	return false
}
