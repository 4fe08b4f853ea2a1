package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/sentientmesh/synapse/internal/embedder"
	"github.com/sentientmesh/synapse/internal/memstore"
	"github.com/sentientmesh/synapse/internal/models"
)

// Rank weights. Similarity dominates; importance and recency break the
// near-ties between equally relevant records.
const (
	weightSimilarity = 0.7
	weightImportance = 0.2
	weightRecency    = 0.1

	// substringBoost rewards exact phrase containment on the lexical path.
	substringBoost = 0.25

	// vectorOverfetch widens the store's top-K so rank reordering has
	// candidates to work with.
	vectorOverfetch = 4

	// lexicalPageSize is the scroll page size for the lexical scan.
	lexicalPageSize = 256
)

// Retriever answers memory searches with hybrid vector+lexical scoring.
type Retriever struct {
	store     memstore.Store
	embedder  embedder.Embedder
	policy    SearchPolicy
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewRetriever creates a retriever. retention is the window used for the
// recency component and for extending expiry on hits.
func NewRetriever(store memstore.Store, emb embedder.Embedder, policy SearchPolicy, retention time.Duration, logger *slog.Logger) *Retriever {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Retriever{
		store:     store,
		embedder:  emb,
		policy:    policy,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (r *Retriever) SetClock(now func() time.Time) {
	r.now = now
}

// Policy returns the retriever's search defaults.
func (r *Retriever) Policy() SearchPolicy {
	return r.policy
}

// Search runs a hybrid retrieval for one owner. Zero-valued query knobs are
// filled from the policy. An embedding failure degrades the query to
// lexical-only instead of failing it; a store failure is returned so callers
// can decide to degrade.
//
// Results are active, unexpired, at or above MinSimilarity, ordered by
// descending rank (ties by most recent CreatedAt), and capped at Limit.
func (r *Retriever) Search(ctx context.Context, q models.MemoryQuery) ([]models.ScoredMemory, error) {
	q = r.policy.Resolve(q)
	if strings.TrimSpace(q.OwnerID) == "" {
		return nil, fmt.Errorf("%w: owner_id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(q.Text) == "" && q.Embedding == nil {
		return nil, fmt.Errorf("%w: query text is required", ErrInvalidInput)
	}
	if !q.Mode.IsValid() {
		return nil, fmt.Errorf("%w: unknown search mode %q", ErrInvalidInput, q.Mode)
	}

	records := make(map[string]models.MemoryRecord)
	similarity := make(map[string]float64)

	mode := q.Mode
	if mode.UsesVector() {
		vec := q.Embedding
		if vec == nil {
			embedded, err := r.embedder.Embed(ctx, q.Text)
			if err != nil {
				r.logger.Warn("query embedding failed, degrading to lexical search", "owner", q.OwnerID, "error", err)
				mode = models.ModeLexical
			} else {
				vec = embedded
			}
		}
		if vec != nil {
			matches, err := r.store.SearchVector(ctx, q.OwnerID, vec, uint64(q.Limit*vectorOverfetch), q.MinSimilarity)
			if err != nil {
				return nil, fmt.Errorf("vector search: %w", err)
			}
			for _, m := range matches {
				records[m.Record.ID] = m.Record
				similarity[m.Record.ID] = m.Score
			}
		}
	}

	if mode.UsesLexical() && strings.TrimSpace(q.Text) != "" {
		if err := r.lexicalScan(ctx, q, records, similarity); err != nil {
			return nil, fmt.Errorf("lexical search: %w", err)
		}
	}

	now := r.now().UTC()
	results := make([]models.ScoredMemory, 0, len(records))
	for id, rec := range records {
		sim := similarity[id]
		if sim < q.MinSimilarity || !rec.Active || rec.Expired(now) {
			continue
		}
		results = append(results, models.ScoredMemory{
			Record:     rec,
			Similarity: sim,
			Rank:       weightSimilarity*sim + weightImportance*rec.Importance + weightRecency*r.recency(rec, now),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Rank != results[j].Rank {
			return results[i].Rank > results[j].Rank
		}
		return results[i].Record.CreatedAt.After(results[j].Record.CreatedAt)
	})
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}

	r.touchHits(ctx, q.OwnerID, results, now)
	return results, nil
}

// lexicalScan pages through the owner's active records scoring token
// overlap against the query. Merging keeps the max of vector and lexical
// similarity per record.
func (r *Retriever) lexicalScan(ctx context.Context, q models.MemoryQuery, records map[string]models.MemoryRecord, similarity map[string]float64) error {
	queryTokens := tokenize(q.Text)
	if len(queryTokens) == 0 {
		return nil
	}
	queryNorm := normalize(q.Text)

	cursor := ""
	for {
		page, next, err := r.store.ListByOwner(ctx, q.OwnerID, true, lexicalPageSize, cursor)
		if err != nil {
			return err
		}
		for _, rec := range page {
			score := lexicalScore(queryTokens, queryNorm, rec.Content)
			if score <= 0 {
				continue
			}
			if score > similarity[rec.ID] {
				similarity[rec.ID] = score
			}
			if _, seen := records[rec.ID]; !seen {
				records[rec.ID] = rec
			}
		}
		if next == "" {
			return nil
		}
		cursor = next
	}
}

// recency decays linearly from 1 at creation to 0 at the retention horizon.
func (r *Retriever) recency(rec models.MemoryRecord, now time.Time) float64 {
	if rec.CreatedAt.IsZero() {
		return 0
	}
	age := now.Sub(rec.CreatedAt)
	if age <= 0 {
		return 1
	}
	if age >= r.retention {
		return 0
	}
	return 1 - float64(age)/float64(r.retention)
}

// touchHits extends expiry on returned records so consulted memories stay
// alive. Best-effort: a touch failure is logged, never surfaced.
func (r *Retriever) touchHits(ctx context.Context, ownerID string, hits []models.ScoredMemory, now time.Time) {
	for _, hit := range hits {
		if hit.Record.ExpiresAt.IsZero() {
			continue
		}
		extended := now.Add(r.retention)
		if !extended.After(hit.Record.ExpiresAt) {
			continue
		}
		if err := r.store.TouchExpiry(ctx, ownerID, hit.Record.ID, extended); err != nil {
			r.logger.Warn("extending memory expiry failed", "id", hit.Record.ID, "error", err)
		}
	}
}

// lexicalScore is the fraction of query tokens found in the content, with a
// boost when the whole normalized query appears as a substring.
func lexicalScore(queryTokens []string, queryNorm, content string) float64 {
	contentTokens := tokenSet(content)
	matched := 0
	for _, t := range queryTokens {
		if _, ok := contentTokens[t]; ok {
			matched++
		}
	}
	score := float64(matched) / float64(len(queryTokens))
	if queryNorm != "" && strings.Contains(normalize(content), queryNorm) {
		score += substringBoost
	}
	if score > 1 {
		score = 1
	}
	return score
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	tokens := fields[:0]
	for _, f := range fields {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range tokenize(text) {
		set[t] = struct{}{}
	}
	return set
}

func normalize(text string) string {
	return strings.Join(tokenize(text), " ")
}
