package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sentientmesh/synapse/internal/embedder"
	"github.com/sentientmesh/synapse/internal/memstore"
	"github.com/sentientmesh/synapse/internal/models"
)

const (
	defaultImportance  = 0.5
	personalImportance = 0.8
	highImportance     = 0.9
	sessionRetention   = 24 * time.Hour
)

// WriteMeta carries the optional hints attached to one memory write.
type WriteMeta struct {
	ConversationID string
	Priority       string           // "high" pins the record long-term
	Retention      models.Retention // empty means RetentionDefault
	Tags           []string
	Importance     float64 // explicit [0,1]; 0 means unset
}

// WriteJob is one queued asynchronous memory write.
type WriteJob struct {
	OwnerID string
	Text    string
	Meta    WriteMeta
}

// Writer validates and persists memory records. Synchronous writes go
// through Store; the orchestrator uses Enqueue so a chat response is never
// blocked or failed by the memory path.
type Writer struct {
	store     memstore.Store
	embedder  embedder.Embedder
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time

	queue  chan WriteJob
	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	dropped atomic.Int64
}

// NewWriter creates a writer backed by queueSize slots and workers
// goroutines draining them. Queued jobs run on the writer's own base
// context, so caller cancellation never aborts an accepted write.
func NewWriter(store memstore.Store, emb embedder.Embedder, retention time.Duration, queueSize, workers int, logger *slog.Logger) *Writer {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if queueSize <= 0 {
		queueSize = 128
	}
	if workers <= 0 {
		workers = 2
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	w := &Writer{
		store:     store,
		embedder:  emb,
		retention: retention,
		logger:    logger,
		now:       time.Now,
		queue:     make(chan WriteJob, queueSize),
		cancel:    cancel,
	}

	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go w.worker(baseCtx)
	}

	return w
}

// SetClock overrides the time source. Test hook.
func (w *Writer) SetClock(now func() time.Time) {
	w.now = now
}

// Store validates, embeds, and persists one memory record synchronously.
// Embedding failure degrades to a lexical-only record rather than failing
// the write. Duplicate submissions create duplicate records; dedup is the
// retriever's ranking problem, not the writer's.
func (w *Writer) Store(ctx context.Context, ownerID, text string, meta WriteMeta) (*models.MemoryRecord, error) {
	ownerID = strings.TrimSpace(ownerID)
	text = strings.TrimSpace(text)
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner_id is required", ErrInvalidInput)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	if meta.Importance < 0 || meta.Importance > 1 {
		return nil, fmt.Errorf("%w: importance must be in [0,1]", ErrInvalidInput)
	}
	if meta.Retention != "" && !meta.Retention.IsValid() {
		return nil, fmt.Errorf("%w: unknown retention %q", ErrInvalidInput, meta.Retention)
	}

	vec, err := w.embedder.Embed(ctx, text)
	if err != nil {
		w.logger.Warn("embedding failed, storing without vector", "owner", ownerID, "error", err)
		vec = nil
	}

	now := w.now().UTC()
	record := models.MemoryRecord{
		ID:             uuid.New().String(),
		OwnerID:        ownerID,
		ConversationID: meta.ConversationID,
		Content:        text,
		Embedding:      vec,
		Importance:     w.importance(text, meta),
		Tags:           meta.Tags,
		CreatedAt:      now,
		ExpiresAt:      w.expiry(now, meta),
		Active:         true,
	}

	if err := w.store.Insert(ctx, record); err != nil {
		return nil, fmt.Errorf("storing memory: %w", err)
	}

	w.logger.Debug("stored memory",
		"id", record.ID,
		"owner", ownerID,
		"importance", record.Importance,
		"has_embedding", record.Embedding != nil)
	return &record, nil
}

// Enqueue submits an asynchronous write. It never blocks: when the queue is
// full or the writer is closed the job is dropped with a log line and
// Enqueue returns false.
func (w *Writer) Enqueue(job WriteJob) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.logger.Warn("memory write dropped, writer closed", "owner", job.OwnerID)
		w.dropped.Add(1)
		return false
	}
	select {
	case w.queue <- job:
		return true
	default:
		w.logger.Warn("memory write dropped, queue full", "owner", job.OwnerID)
		w.dropped.Add(1)
		return false
	}
}

// Dropped returns how many enqueued writes have been dropped.
func (w *Writer) Dropped() int64 {
	return w.dropped.Load()
}

// Close stops accepting new jobs, drains the queue, and waits for workers.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	w.wg.Wait()
	w.cancel()
}

func (w *Writer) worker(ctx context.Context) {
	defer w.wg.Done()
	for job := range w.queue {
		if _, err := w.Store(ctx, job.OwnerID, job.Text, job.Meta); err != nil {
			w.logger.Error("async memory write failed", "owner", job.OwnerID, "error", err)
		}
	}
}

func (w *Writer) importance(text string, meta WriteMeta) float64 {
	score := defaultImportance
	if meta.Importance > 0 {
		score = meta.Importance
	}
	if isPersonalFact(text) && score < personalImportance {
		score = personalImportance
	}
	if meta.Priority == "high" && score < highImportance {
		score = highImportance
	}
	return score
}

// expiry maps the write hints to an ExpiresAt; zero means never.
func (w *Writer) expiry(now time.Time, meta WriteMeta) time.Time {
	if meta.Priority == "high" || meta.Retention == models.RetentionLongTerm {
		return time.Time{}
	}
	if meta.Retention == models.RetentionSession {
		return now.Add(sessionRetention)
	}
	return now.Add(w.retention)
}
