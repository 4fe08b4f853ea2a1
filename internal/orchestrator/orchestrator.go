// Package orchestrator wires classification, memory retrieval, provider
// selection, and fallback dispatch into the single chat entry point.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sentientmesh/synapse/internal/classifier"
	"github.com/sentientmesh/synapse/internal/health"
	"github.com/sentientmesh/synapse/internal/memory"
	"github.com/sentientmesh/synapse/internal/metrics"
	"github.com/sentientmesh/synapse/internal/models"
	"github.com/sentientmesh/synapse/internal/provider"
	"github.com/sentientmesh/synapse/internal/ratelimit"
	"github.com/sentientmesh/synapse/pkg/tokenizer"
	"github.com/sentientmesh/synapse/pkg/xmlutil"
)

// ErrExhausted is returned when every candidate in the fallback chain was
// skipped or failed. The accompanying ChatResponse is still populated with a
// degraded answer so callers never see an empty success.
var ErrExhausted = errors.New("all providers exhausted")

// ErrInvalidRequest is returned when a chat request is missing a required
// field.
var ErrInvalidRequest = errors.New("invalid chat request")

const (
	// DefaultAttemptTimeout bounds one provider attempt, not the whole
	// request: a slow provider costs one slot in the chain, never the turn.
	DefaultAttemptTimeout = 30 * time.Second

	// DefaultMemoryBudget is the token budget for memory context injected
	// into the system prompt.
	DefaultMemoryBudget = 1000

	distillTimeout = 30 * time.Second

	degradedMessage = "All chat backends are currently unavailable. Your message was not processed; please retry shortly."

	baseSystemPrompt = "You are a helpful assistant. Answer the user directly and concisely."

	freshnessCaveat = "The user is asking about current events. You have no live data access; say so and answer from general knowledge, flagging that details may be out of date."
)

// Options carries the orchestrator's tunables. Zero values fall back to the
// package defaults.
type Options struct {
	AttemptTimeout time.Duration
	MemoryBudget   int
}

// Orchestrator executes one chat turn: classify, retrieve, walk the
// fallback chain, record outcomes, and capture the exchange asynchronously.
type Orchestrator struct {
	classifier classifier.Classifier
	registry   *provider.Registry
	health     *health.Tracker
	limiter    *ratelimit.Limiter
	retriever  *memory.Retriever
	writer     *memory.Writer
	distiller  *memory.Distiller // optional; nil stores raw exchanges

	attemptTimeout time.Duration
	memoryBudget   int
	logger         *slog.Logger
}

// New creates an orchestrator. distiller may be nil.
func New(
	cls classifier.Classifier,
	registry *provider.Registry,
	tracker *health.Tracker,
	limiter *ratelimit.Limiter,
	retriever *memory.Retriever,
	writer *memory.Writer,
	distiller *memory.Distiller,
	opts Options,
	logger *slog.Logger,
) *Orchestrator {
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = DefaultAttemptTimeout
	}
	if opts.MemoryBudget <= 0 {
		opts.MemoryBudget = DefaultMemoryBudget
	}
	return &Orchestrator{
		classifier:     cls,
		registry:       registry,
		health:         tracker,
		limiter:        limiter,
		retriever:      retriever,
		writer:         writer,
		distiller:      distiller,
		attemptTimeout: opts.AttemptTimeout,
		memoryBudget:   opts.MemoryBudget,
		logger:         logger,
	}
}

// Chat handles one turn. On success the response is returned synchronously
// and the exchange is enqueued for asynchronous memory capture. When the
// whole chain fails the response carries Degraded=true alongside
// ErrExhausted.
func (o *Orchestrator) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return models.ChatResponse{}, fmt.Errorf("%w: owner_id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Message) == "" {
		return models.ChatResponse{}, fmt.Errorf("%w: message is required", ErrInvalidRequest)
	}
	metrics.Inc(metrics.ChatTotal)

	classified := o.classifier.Classify(req.Message, "")

	memories := o.retrieve(ctx, classified, req)
	system, memoriesUsed := o.buildSystem(classified, memories)

	chain := o.registry.Chain(classified.Type, req.Provider, req.Model)
	attempts := 0

	for _, cand := range chain {
		if err := ctx.Err(); err != nil {
			return models.ChatResponse{}, err
		}
		name := cand.Name()

		if !o.health.Available(name) {
			metrics.Inc(metrics.AttemptSkipped)
			o.logger.Debug("skipping unavailable provider", "provider", name)
			continue
		}
		if !o.limiter.TryAcquire(req.OwnerID, name) {
			metrics.Inc(metrics.AttemptSkipped)
			o.logger.Debug("skipping rate-limited provider", "provider", name, "owner", req.OwnerID)
			continue
		}

		attempts++
		metrics.Inc(metrics.AttemptTotal)

		attemptCtx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
		start := time.Now()
		resp, err := cand.Provider.Complete(attemptCtx, provider.CompletionRequest{
			Model:  cand.Model,
			System: system,
			Prompt: req.Message,
		})
		latency := time.Since(start)
		cancel()

		if err != nil {
			// Caller cancellation aborts the turn without penalizing the
			// provider; everything else is a real failed attempt.
			if ctx.Err() != nil {
				return models.ChatResponse{}, ctx.Err()
			}
			o.health.RecordOutcome(name, false, latency)
			metrics.Inc(metrics.AttemptFailed)
			o.logger.Warn("provider attempt failed",
				"provider", name, "model", cand.Model, "attempt", attempts, "error", err)
			continue
		}

		o.health.RecordOutcome(name, true, latency)
		o.capture(req, resp.Content)

		return models.ChatResponse{
			Content:      resp.Content,
			Provider:     name,
			Model:        cand.Model,
			QueryType:    classified.Type,
			MemoriesUsed: memoriesUsed,
			Attempts:     attempts,
		}, nil
	}

	metrics.Inc(metrics.ChatDegraded)
	o.logger.Error("fallback chain exhausted",
		"owner", req.OwnerID, "query_type", classified.Type, "attempts", attempts, "chain_len", len(chain))
	return models.ChatResponse{
		Content:   degradedMessage,
		Provider:  "none",
		QueryType: classified.Type,
		Attempts:  attempts,
		Degraded:  true,
	}, ErrExhausted
}

// retrieve fetches memory context for queries that need it. A retrieval
// failure degrades to an empty context; it never fails the turn.
func (o *Orchestrator) retrieve(ctx context.Context, classified models.ClassifiedQuery, req models.ChatRequest) []models.ScoredMemory {
	if !classified.NeedsMemory || o.retriever == nil {
		return nil
	}
	memories, err := o.retriever.Search(ctx, models.MemoryQuery{
		OwnerID: req.OwnerID,
		Text:    req.Message,
	})
	if err != nil {
		o.logger.Warn("memory retrieval failed, continuing without context",
			"owner", req.OwnerID, "error", err)
		return nil
	}
	metrics.Inc(metrics.MemorySearchTotal)
	return memories
}

// buildSystem assembles the system prompt: base instructions, then the
// retrieved memories that fit the token budget, XML-escaped and delimited.
// The returned count is how many memories actually made it in.
func (o *Orchestrator) buildSystem(classified models.ClassifiedQuery, memories []models.ScoredMemory) (string, int) {
	var b strings.Builder
	b.WriteString(baseSystemPrompt)

	if classified.NeedsExternalLookup {
		b.WriteString("\n\n")
		b.WriteString(freshnessCaveat)
	}

	if len(memories) == 0 {
		return b.String(), 0
	}

	contents := make([]string, len(memories))
	for i, m := range memories {
		contents[i] = xmlutil.Escape(m.Record.Content)
	}
	formatted, used := tokenizer.FormatMemoriesWithBudget(contents, o.memoryBudget)
	if used == 0 {
		return b.String(), 0
	}

	b.WriteString("\n\nWhat you remember about this user:\n<memories>\n")
	b.WriteString(formatted)
	b.WriteString("\n</memories>")
	return b.String(), used
}

// capture enqueues the exchange for memory storage. With a distiller the
// extraction runs in its own goroutine on a fresh context, so neither the
// caller's cancellation nor a slow model delays the response; distillation
// failure falls back to storing the raw exchange.
func (o *Orchestrator) capture(req models.ChatRequest, reply string) {
	if o.writer == nil {
		return
	}
	raw := fmt.Sprintf("User: %s\nAssistant: %s", req.Message, reply)
	meta := memory.WriteMeta{ConversationID: req.ConversationID}

	if o.distiller == nil {
		if o.writer.Enqueue(memory.WriteJob{OwnerID: req.OwnerID, Text: raw, Meta: meta}) {
			metrics.Inc(metrics.MemoryWriteTotal)
		}
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), distillTimeout)
		defer cancel()

		facts, err := o.distiller.Distill(ctx, req.Message, reply)
		if err != nil {
			o.logger.Warn("fact distillation failed, storing raw exchange", "error", err)
			facts = nil
		}
		if len(facts) == 0 {
			if o.writer.Enqueue(memory.WriteJob{OwnerID: req.OwnerID, Text: raw, Meta: meta}) {
				metrics.Inc(metrics.MemoryWriteTotal)
			}
			return
		}
		for _, fact := range facts {
			if o.writer.Enqueue(memory.WriteJob{OwnerID: req.OwnerID, Text: fact, Meta: meta}) {
				metrics.Inc(metrics.MemoryWriteTotal)
			}
		}
	}()
}
