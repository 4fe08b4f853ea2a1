package memstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sentientmesh/synapse/internal/models"
)

// MemoryStore is an in-memory Store for tests and single-process setups.
// It mirrors QdrantStore semantics: owner scoping on every call, cosine
// similarity for search, and an opaque cursor for paging.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.MemoryRecord

	failMu   sync.Mutex
	failNext bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]models.MemoryRecord),
	}
}

// FailNextCall makes the next store call return ErrUnavailable. Tests use it
// to exercise degraded retrieval paths.
func (m *MemoryStore) FailNextCall() {
	m.failMu.Lock()
	m.failNext = true
	m.failMu.Unlock()
}

func (m *MemoryStore) failCheck() error {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	if m.failNext {
		m.failNext = false
		return fmt.Errorf("%w: injected failure", ErrUnavailable)
	}
	return nil
}

func (m *MemoryStore) EnsureCollection(_ context.Context) error {
	return nil
}

func (m *MemoryStore) Insert(_ context.Context, record models.MemoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failCheck(); err != nil {
		return err
	}
	m.records[record.ID] = copyRecord(record)
	return nil
}

func (m *MemoryStore) SearchVector(_ context.Context, ownerID string, vector []float32, limit uint64, minScore float64) ([]VectorMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failCheck(); err != nil {
		return nil, err
	}

	var matches []VectorMatch
	for _, rec := range m.records {
		if rec.OwnerID != ownerID || !rec.Active || len(rec.Embedding) == 0 {
			continue
		}
		score := cosineSimilarity(vector, rec.Embedding)
		if score < minScore {
			continue
		}
		matches = append(matches, VectorMatch{Record: copyRecord(rec), Score: score})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if uint64(len(matches)) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (m *MemoryStore) ListByOwner(_ context.Context, ownerID string, activeOnly bool, limit uint64, cursor string) ([]models.MemoryRecord, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failCheck(); err != nil {
		return nil, "", err
	}

	var all []models.MemoryRecord
	for _, rec := range m.records {
		if rec.OwnerID != ownerID {
			continue
		}
		if activeOnly && !rec.Active {
			continue
		}
		all = append(all, copyRecord(rec))
	}

	// Stable order so cursors mean the same thing across calls.
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	start := 0
	if cursor != "" {
		for i, rec := range all {
			if rec.ID == cursor {
				start = i
				break
			}
		}
	}

	end := start + int(limit)
	var next string
	if end < len(all) {
		next = all[end].ID
	} else {
		end = len(all)
	}
	return all[start:end], next, nil
}

func (m *MemoryStore) Get(_ context.Context, ownerID, id string) (*models.MemoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failCheck(); err != nil {
		return nil, err
	}

	rec, ok := m.records[id]
	if !ok || rec.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c := copyRecord(rec)
	return &c, nil
}

func (m *MemoryStore) MarkInactive(_ context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failCheck(); err != nil {
		return err
	}

	rec, ok := m.records[id]
	if !ok || rec.OwnerID != ownerID {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec.Active = false
	rec.InactiveAt = time.Now().UTC()
	m.records[id] = rec
	return nil
}

func (m *MemoryStore) ListExpired(_ context.Context, before time.Time, limit uint64, cursor string) ([]models.MemoryRecord, string, error) {
	return m.listWhere(limit, cursor, func(r models.MemoryRecord) bool {
		return r.Active && !r.ExpiresAt.IsZero() && r.ExpiresAt.Before(before)
	})
}

func (m *MemoryStore) ListInactiveSince(_ context.Context, before time.Time, limit uint64, cursor string) ([]models.MemoryRecord, string, error) {
	return m.listWhere(limit, cursor, func(r models.MemoryRecord) bool {
		return !r.Active && !r.InactiveAt.IsZero() && r.InactiveAt.Before(before)
	})
}

func (m *MemoryStore) listWhere(limit uint64, cursor string, match func(models.MemoryRecord) bool) ([]models.MemoryRecord, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failCheck(); err != nil {
		return nil, "", err
	}

	var all []models.MemoryRecord
	for _, rec := range m.records {
		if match(rec) {
			all = append(all, copyRecord(rec))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	start := 0
	if cursor != "" {
		for i, rec := range all {
			if rec.ID == cursor {
				start = i
				break
			}
		}
	}
	end := start + int(limit)
	var next string
	if end < len(all) {
		next = all[end].ID
	} else {
		end = len(all)
	}
	return all[start:end], next, nil
}

func (m *MemoryStore) Delete(_ context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failCheck(); err != nil {
		return err
	}

	rec, ok := m.records[id]
	if !ok || rec.OwnerID != ownerID {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.records, id)
	return nil
}

func (m *MemoryStore) TouchExpiry(_ context.Context, ownerID, id string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failCheck(); err != nil {
		return err
	}

	rec, ok := m.records[id]
	if !ok || rec.OwnerID != ownerID {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec.ExpiresAt = expiresAt
	m.records[id] = rec
	return nil
}

func (m *MemoryStore) Stats(_ context.Context) (*models.StoreStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failCheck(); err != nil {
		return nil, err
	}

	stats := &models.StoreStats{
		RecordsByOwner: make(map[string]int64),
	}
	for _, rec := range m.records {
		stats.TotalRecords++
		if rec.Active {
			stats.ActiveRecords++
		}
		stats.RecordsByOwner[rec.OwnerID]++
	}
	return stats, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// Count returns how many records exist across all owners. Test helper.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func copyRecord(r models.MemoryRecord) models.MemoryRecord {
	c := r
	if r.Embedding != nil {
		c.Embedding = make([]float32, len(r.Embedding))
		copy(c.Embedding, r.Embedding)
	}
	if r.Tags != nil {
		c.Tags = make([]string, len(r.Tags))
		copy(c.Tags, r.Tags)
	}
	return c
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
