// Package memory implements the write, retrieval, and expiry paths over the
// owner-scoped store: validating writes with importance scoring, hybrid
// vector+lexical search with rank ordering, and the background expiry sweep.
package memory

import (
	"errors"
	"time"

	"github.com/sentientmesh/synapse/internal/models"
)

// ErrInvalidInput is returned when a write or search request is missing a
// required field or carries an out-of-range value.
var ErrInvalidInput = errors.New("invalid memory input")

// DefaultRetention is how long a default-retention record lives.
const DefaultRetention = 180 * 24 * time.Hour

// SearchPolicy is the single source of retrieval defaults. Every caller
// (API, MCP, orchestrator, CLI) resolves its query through the same policy
// so result quality does not depend on which surface issued the search.
type SearchPolicy struct {
	Limit         int
	MinSimilarity float64
	Mode          models.SearchMode
}

// DefaultSearchPolicy returns the standard retrieval defaults.
func DefaultSearchPolicy() SearchPolicy {
	return SearchPolicy{
		Limit:         5,
		MinSimilarity: 0.1,
		Mode:          models.ModeHybrid,
	}
}

// Resolve fills the query's zero-valued knobs from the policy. Explicit
// per-call values are kept as-is.
func (p SearchPolicy) Resolve(q models.MemoryQuery) models.MemoryQuery {
	if q.Limit <= 0 {
		q.Limit = p.Limit
	}
	if q.MinSimilarity <= 0 {
		q.MinSimilarity = p.MinSimilarity
	}
	if q.Mode == "" {
		q.Mode = p.Mode
	}
	return q
}
