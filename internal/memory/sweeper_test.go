package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentientmesh/synapse/internal/memstore"
	"github.com/sentientmesh/synapse/internal/models"
)

func sweepSeed(t *testing.T, store memstore.Store, ownerID string, mutate func(*models.MemoryRecord)) models.MemoryRecord {
	t.Helper()
	now := time.Now().UTC()
	rec := models.MemoryRecord{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		Content:    "sweep fixture",
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

func TestSweeper_MarksExpiredInactive(t *testing.T) {
	store := memstore.NewMemoryStore()
	s := NewSweeper(store, 0, 0, testLogger())

	expired := sweepSeed(t, store, "u1", func(rec *models.MemoryRecord) {
		rec.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	})
	fresh := sweepSeed(t, store, "u1", nil)
	forever := sweepSeed(t, store, "u2", func(rec *models.MemoryRecord) {
		rec.ExpiresAt = time.Time{}
	})

	result, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Expired)
	assert.Equal(t, 0, result.Deleted)

	got, err := store.Get(context.Background(), "u1", expired.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.False(t, got.InactiveAt.IsZero())

	got, err = store.Get(context.Background(), "u1", fresh.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)

	got, err = store.Get(context.Background(), "u2", forever.ID)
	require.NoError(t, err)
	assert.True(t, got.Active, "zero ExpiresAt means never expires")
}

func TestSweeper_DeletesInactivePastGrace(t *testing.T) {
	store := memstore.NewMemoryStore()
	s := NewSweeper(store, 0, 0, testLogger())

	stale := sweepSeed(t, store, "u1", func(rec *models.MemoryRecord) {
		rec.Active = false
		rec.InactiveAt = time.Now().UTC().Add(-8 * 24 * time.Hour)
	})
	recent := sweepSeed(t, store, "u1", func(rec *models.MemoryRecord) {
		rec.Active = false
		rec.InactiveAt = time.Now().UTC().Add(-time.Hour)
	})

	result, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)

	_, err = store.Get(context.Background(), "u1", stale.ID)
	assert.ErrorIs(t, err, memstore.ErrNotFound)

	got, err := store.Get(context.Background(), "u1", recent.ID)
	require.NoError(t, err)
	assert.False(t, got.Active, "within grace the record survives, still inactive")
}

func TestSweeper_ExpireThenDeleteAcrossPasses(t *testing.T) {
	store := memstore.NewMemoryStore()
	s := NewSweeper(store, 0, 0, testLogger())

	clock := time.Now().UTC()
	s.SetClock(func() time.Time { return clock })

	rec := sweepSeed(t, store, "u1", func(rec *models.MemoryRecord) {
		rec.ExpiresAt = clock.Add(-time.Minute)
	})

	result, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Expired)

	// Inside the grace period the record is inactive but present.
	result, err = s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Expired)
	assert.Zero(t, result.Deleted)

	clock = clock.Add(DefaultGracePeriod + time.Hour)
	result, err = s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)

	_, err = store.Get(context.Background(), "u1", rec.ID)
	assert.ErrorIs(t, err, memstore.ErrNotFound)
}

func TestSweeper_StoreFailureReported(t *testing.T) {
	store := memstore.NewMemoryStore()
	s := NewSweeper(store, 0, 0, testLogger())

	store.FailNextCall()
	_, err := s.Sweep(context.Background())
	assert.ErrorIs(t, err, memstore.ErrUnavailable)
}
