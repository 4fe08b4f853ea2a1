// Package memstore defines owner-scoped persistence for memory records.
// Every operation takes an OwnerID and must never read or write another
// owner's records; enforcement lives at the query layer, not in callers.
package memstore

import (
	"context"
	"errors"
	"time"

	"github.com/sentientmesh/synapse/internal/models"
)

// ErrNotFound is returned when the requested record does not exist for the
// given owner.
var ErrNotFound = errors.New("memory record not found")

// ErrUnavailable wraps transport failures so callers can degrade instead of
// failing the chat path.
var ErrUnavailable = errors.New("memory store unavailable")

// VectorMatch is one vector search hit with its cosine similarity.
type VectorMatch struct {
	Record models.MemoryRecord
	Score  float64
}

// Store is the persistence contract for memory records with vector search.
type Store interface {
	// EnsureCollection creates the collection and indexes if missing.
	EnsureCollection(ctx context.Context) error

	// Insert persists a new record. The record's Embedding may be nil when
	// embedding generation failed; such records are still lexically
	// searchable.
	Insert(ctx context.Context, record models.MemoryRecord) error

	// SearchVector returns the owner's top-limit active records by cosine
	// similarity to the query vector, pre-filtered to score >= minScore.
	SearchVector(ctx context.Context, ownerID string, vector []float32, limit uint64, minScore float64) ([]VectorMatch, error)

	// ListByOwner pages through the owner's records. activeOnly restricts
	// to Active records. The cursor is opaque; pass "" for the first page,
	// the returned cursor is empty when no more results remain.
	ListByOwner(ctx context.Context, ownerID string, activeOnly bool, limit uint64, cursor string) ([]models.MemoryRecord, string, error)

	// Get retrieves one record, scoped to the owner.
	Get(ctx context.Context, ownerID, id string) (*models.MemoryRecord, error)

	// MarkInactive flips Active to false and stamps InactiveAt without
	// deleting the record.
	MarkInactive(ctx context.Context, ownerID, id string) error

	// ListExpired pages through active records, across owners, whose
	// ExpiresAt precedes before. Used by the expiry sweeper.
	ListExpired(ctx context.Context, before time.Time, limit uint64, cursor string) ([]models.MemoryRecord, string, error)

	// ListInactiveSince pages through inactive records, across owners,
	// whose InactiveAt precedes before. Used by the sweeper to hard-delete
	// records past the grace period.
	ListInactiveSince(ctx context.Context, before time.Time, limit uint64, cursor string) ([]models.MemoryRecord, string, error)

	// Delete hard-removes a record, scoped to the owner.
	Delete(ctx context.Context, ownerID, id string) error

	// TouchExpiry extends the record's ExpiresAt. Used on retrieval hits to
	// keep frequently-consulted memories alive.
	TouchExpiry(ctx context.Context, ownerID, id string, expiresAt time.Time) error

	// Stats returns collection statistics.
	Stats(ctx context.Context) (*models.StoreStats, error)

	// Close cleans up resources.
	Close() error
}
