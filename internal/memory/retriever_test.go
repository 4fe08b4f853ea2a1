package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentientmesh/synapse/internal/embedder"
	"github.com/sentientmesh/synapse/internal/memstore"
	"github.com/sentientmesh/synapse/internal/models"
)

func newTestRetriever(store memstore.Store, emb embedder.Embedder) *Retriever {
	return NewRetriever(store, emb, DefaultSearchPolicy(), DefaultRetention, testLogger())
}

func seedRecord(t *testing.T, store memstore.Store, emb embedder.Embedder, ownerID, content string, mutate func(*models.MemoryRecord)) models.MemoryRecord {
	t.Helper()
	vec, err := emb.Embed(context.Background(), content)
	require.NoError(t, err)

	now := time.Now().UTC()
	rec := models.MemoryRecord{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		Content:    content,
		Embedding:  vec,
		Importance: 0.5,
		CreatedAt:  now,
		ExpiresAt:  now.Add(DefaultRetention),
		Active:     true,
	}
	if mutate != nil {
		mutate(&rec)
	}
	require.NoError(t, store.Insert(context.Background(), rec))
	return rec
}

func TestRetriever_RecallsStoredNameFact(t *testing.T) {
	store := memstore.NewMemoryStore()
	emb := embedder.NewFakeEmbedder(32)
	r := newTestRetriever(store, emb)

	seedRecord(t, store, emb, "u1", "My name is Kunal", nil)

	results, err := r.Search(context.Background(), models.MemoryQuery{
		OwnerID: "u1",
		Text:    "Do you know my name?",
	})
	require.NoError(t, err)
	require.NotEmpty(t, results, "hybrid search must recall the stored name fact")
	assert.Equal(t, "My name is Kunal", results[0].Record.Content)
	assert.GreaterOrEqual(t, results[0].Similarity, 0.1)
}

func TestRetriever_LexicalRoundTripNearMaxSimilarity(t *testing.T) {
	store := memstore.NewMemoryStore()
	emb := embedder.NewFakeEmbedder(32)
	r := newTestRetriever(store, emb)

	seedRecord(t, store, emb, "u1", "the staging cluster lives in eu-west-1", nil)

	results, err := r.Search(context.Background(), models.MemoryQuery{
		OwnerID: "u1",
		Text:    "the staging cluster lives in eu-west-1",
		Mode:    models.ModeLexical,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Similarity, 0.001, "identical text scores at the ceiling")
}

func TestRetriever_ExpiredNeverReturned(t *testing.T) {
	store := memstore.NewMemoryStore()
	emb := embedder.NewFakeEmbedder(32)
	r := newTestRetriever(store, emb)

	seedRecord(t, store, emb, "u1", "stale fact about my name", func(rec *models.MemoryRecord) {
		rec.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	})
	seedRecord(t, store, emb, "u1", "fresh fact about my name", nil)

	results, err := r.Search(context.Background(), models.MemoryQuery{OwnerID: "u1", Text: "my name"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "fresh fact about my name", results[0].Record.Content)
}

func TestRetriever_InactiveNeverReturned(t *testing.T) {
	store := memstore.NewMemoryStore()
	emb := embedder.NewFakeEmbedder(32)
	r := newTestRetriever(store, emb)

	rec := seedRecord(t, store, emb, "u1", "forget this preference", nil)
	require.NoError(t, store.MarkInactive(context.Background(), "u1", rec.ID))

	results, err := r.Search(context.Background(), models.MemoryQuery{OwnerID: "u1", Text: "forget this preference"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetriever_OwnerIsolation(t *testing.T) {
	store := memstore.NewMemoryStore()
	emb := embedder.NewFakeEmbedder(32)
	r := newTestRetriever(store, emb)

	seedRecord(t, store, emb, "u1", "my name is Kunal", nil)

	results, err := r.Search(context.Background(), models.MemoryQuery{OwnerID: "u2", Text: "my name is Kunal"})
	require.NoError(t, err)
	assert.Empty(t, results, "one owner's memories are invisible to another")
}

func TestRetriever_RankOrdersByImportanceOnTiedSimilarity(t *testing.T) {
	store := memstore.NewMemoryStore()
	emb := embedder.NewFakeEmbedder(32)
	r := newTestRetriever(store, emb)

	created := time.Now().UTC().Add(-time.Hour)
	seedRecord(t, store, emb, "u1", "I like coffee black", func(rec *models.MemoryRecord) {
		rec.Importance = 0.2
		rec.CreatedAt = created
	})
	seedRecord(t, store, emb, "u1", "I like coffee strong", func(rec *models.MemoryRecord) {
		rec.Importance = 0.9
		rec.CreatedAt = created
	})

	results, err := r.Search(context.Background(), models.MemoryQuery{
		OwnerID: "u1",
		Text:    "I like coffee",
		Mode:    models.ModeLexical,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "I like coffee strong", results[0].Record.Content)
	assert.Greater(t, results[0].Rank, results[1].Rank)
}

func TestRetriever_TieBreaksByMostRecent(t *testing.T) {
	store := memstore.NewMemoryStore()
	emb := embedder.NewFakeEmbedder(32)
	r := newTestRetriever(store, emb)
	// Freeze the clock so the recency component is identical for both.
	now := time.Now().UTC()
	r.SetClock(func() time.Time { return now })

	// Both records sit past the recency horizon, so similarity, importance,
	// and recency are identical; only CreatedAt distinguishes them.
	seedRecord(t, store, emb, "u1", "meeting notes from planning", func(rec *models.MemoryRecord) {
		rec.CreatedAt = now.Add(-DefaultRetention - 48*time.Hour)
		rec.ExpiresAt = now.Add(24 * time.Hour)
	})
	seedRecord(t, store, emb, "u1", "meeting notes from planning", func(rec *models.MemoryRecord) {
		rec.CreatedAt = now.Add(-DefaultRetention - 24*time.Hour)
		rec.ExpiresAt = now.Add(24 * time.Hour)
	})

	results, err := r.Search(context.Background(), models.MemoryQuery{
		OwnerID: "u1",
		Text:    "meeting notes from planning",
		Mode:    models.ModeLexical,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Record.CreatedAt.After(results[1].Record.CreatedAt),
		"equal ranks break toward the most recent record")
}

func TestRetriever_MinSimilarityFilters(t *testing.T) {
	store := memstore.NewMemoryStore()
	emb := embedder.NewFakeEmbedder(32)
	r := newTestRetriever(store, emb)

	seedRecord(t, store, emb, "u1", "completely unrelated grocery list", nil)

	results, err := r.Search(context.Background(), models.MemoryQuery{
		OwnerID:       "u1",
		Text:          "kubernetes ingress timeout",
		Mode:          models.ModeLexical,
		MinSimilarity: 0.3,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetriever_LimitApplied(t *testing.T) {
	store := memstore.NewMemoryStore()
	emb := embedder.NewFakeEmbedder(32)
	r := newTestRetriever(store, emb)

	for i := 0; i < 10; i++ {
		seedRecord(t, store, emb, "u1", "note about the deploy pipeline", func(rec *models.MemoryRecord) {
			rec.CreatedAt = time.Now().UTC().Add(-time.Duration(i) * time.Minute)
		})
	}

	results, err := r.Search(context.Background(), models.MemoryQuery{
		OwnerID: "u1",
		Text:    "deploy pipeline",
		Mode:    models.ModeLexical,
		Limit:   3,
	})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestRetriever_PolicyDefaultsApplied(t *testing.T) {
	store := memstore.NewMemoryStore()
	emb := embedder.NewFakeEmbedder(32)
	r := newTestRetriever(store, emb)

	for i := 0; i < 8; i++ {
		seedRecord(t, store, emb, "u1", "recurring reminder about standup", nil)
	}

	// No limit, no min similarity, no mode: policy fills all three.
	results, err := r.Search(context.Background(), models.MemoryQuery{OwnerID: "u1", Text: "standup reminder"})
	require.NoError(t, err)
	assert.Len(t, results, DefaultSearchPolicy().Limit)
}

func TestRetriever_EmbedFailureDegradesToLexical(t *testing.T) {
	store := memstore.NewMemoryStore()
	seedEmb := embedder.NewFakeEmbedder(32)
	r := newTestRetriever(store, seedEmb)

	seedRecord(t, store, seedEmb, "u1", "my name is Kunal", nil)

	// Queries embed through a failing embedder; lexical still answers.
	failing := embedder.NewFakeEmbedder(32)
	failing.Fail = true
	r.embedder = failing

	results, err := r.Search(context.Background(), models.MemoryQuery{OwnerID: "u1", Text: "do you know my name"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "my name is Kunal", results[0].Record.Content)
}

func TestRetriever_StoreFailureSurfaces(t *testing.T) {
	store := memstore.NewMemoryStore()
	emb := embedder.NewFakeEmbedder(32)
	r := newTestRetriever(store, emb)

	store.FailNextCall()
	_, err := r.Search(context.Background(), models.MemoryQuery{OwnerID: "u1", Text: "anything"})
	require.Error(t, err)
	assert.ErrorIs(t, err, memstore.ErrUnavailable)
}

func TestRetriever_InputValidation(t *testing.T) {
	r := newTestRetriever(memstore.NewMemoryStore(), embedder.NewFakeEmbedder(32))

	_, err := r.Search(context.Background(), models.MemoryQuery{Text: "no owner"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = r.Search(context.Background(), models.MemoryQuery{OwnerID: "u1"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = r.Search(context.Background(), models.MemoryQuery{OwnerID: "u1", Text: "x", Mode: "fuzzy"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRetriever_TouchExtendsExpiryOnHit(t *testing.T) {
	store := memstore.NewMemoryStore()
	emb := embedder.NewFakeEmbedder(32)
	r := newTestRetriever(store, emb)

	rec := seedRecord(t, store, emb, "u1", "I live in Pune", func(rec *models.MemoryRecord) {
		rec.ExpiresAt = time.Now().UTC().Add(24 * time.Hour)
	})

	_, err := r.Search(context.Background(), models.MemoryQuery{OwnerID: "u1", Text: "where do I live"})
	require.NoError(t, err)

	got, err := store.Get(context.Background(), "u1", rec.ID)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.After(time.Now().Add(100*24*time.Hour)),
		"a retrieval hit pushes expiry out by the retention window")
}