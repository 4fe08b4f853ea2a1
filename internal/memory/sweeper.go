package memory

import (
	"context"
	"log/slog"
	"time"

	"github.com/sentientmesh/synapse/internal/memstore"
	"github.com/sentientmesh/synapse/internal/metrics"
)

const (
	// DefaultSweepInterval is how often the background sweep runs.
	DefaultSweepInterval = time.Hour
	// DefaultGracePeriod is how long inactive records linger before hard
	// deletion.
	DefaultGracePeriod = 7 * 24 * time.Hour

	sweepPageSize = 256
)

// SweepResult summarizes one sweep pass.
type SweepResult struct {
	Expired int // records marked inactive
	Deleted int // inactive records hard-deleted past the grace period
}

// Sweeper expires and garbage-collects memory records off the request path.
type Sweeper struct {
	store    memstore.Store
	interval time.Duration
	grace    time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewSweeper creates a sweeper. Non-positive interval or grace fall back to
// the defaults.
func NewSweeper(store memstore.Store, interval, grace time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		grace:    grace,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

// Run sweeps on the configured interval until ctx is canceled. One pass
// runs immediately on start.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	result, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("memory sweep failed", "error", err)
		return
	}
	if result.Expired > 0 || result.Deleted > 0 {
		s.logger.Info("memory sweep", "expired", result.Expired, "deleted", result.Deleted)
	}
}

// Sweep runs one pass: expired active records are marked inactive, and
// records inactive longer than the grace period are hard-deleted.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := s.now().UTC()

	cursor := ""
	for {
		expired, next, err := s.store.ListExpired(ctx, now, sweepPageSize, cursor)
		if err != nil {
			return result, err
		}
		for _, rec := range expired {
			if err := s.store.MarkInactive(ctx, rec.OwnerID, rec.ID); err != nil {
				s.logger.Warn("marking expired record inactive failed", "id", rec.ID, "error", err)
				continue
			}
			result.Expired++
			metrics.Inc(metrics.SweepExpiredTotal)
		}
		if next == "" {
			break
		}
		cursor = next
	}

	graceCutoff := now.Add(-s.grace)
	cursor = ""
	for {
		stale, next, err := s.store.ListInactiveSince(ctx, graceCutoff, sweepPageSize, cursor)
		if err != nil {
			return result, err
		}
		for _, rec := range stale {
			if err := s.store.Delete(ctx, rec.OwnerID, rec.ID); err != nil {
				s.logger.Warn("deleting stale record failed", "id", rec.ID, "error", err)
				continue
			}
			result.Deleted++
			metrics.Inc(metrics.SweepDeletedTotal)
		}
		if next == "" {
			break
		}
		cursor = next
	}

	return result, nil
}
