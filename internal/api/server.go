package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"expvar"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sentientmesh/synapse/internal/health"
	"github.com/sentientmesh/synapse/internal/memory"
	"github.com/sentientmesh/synapse/internal/memstore"
	"github.com/sentientmesh/synapse/internal/models"
	"github.com/sentientmesh/synapse/internal/orchestrator"
	"github.com/sentientmesh/synapse/internal/provider"
)

// Server is the HTTP API over chat and memory operations.
type Server struct {
	orch      *orchestrator.Orchestrator
	writer    *memory.Writer
	retriever *memory.Retriever
	store     memstore.Store
	registry  *provider.Registry
	tracker   *health.Tracker
	logger    *slog.Logger
	authToken string // empty = no auth required
}

// NewServer creates a new Server with the given dependencies.
func NewServer(
	orch *orchestrator.Orchestrator,
	writer *memory.Writer,
	retriever *memory.Retriever,
	store memstore.Store,
	registry *provider.Registry,
	tracker *health.Tracker,
	logger *slog.Logger,
	authToken string,
) *Server {
	return &Server{
		orch:      orch,
		writer:    writer,
		retriever: retriever,
		store:     store,
		registry:  registry,
		tracker:   tracker,
		logger:    logger,
		authToken: authToken,
	}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check and counters — no auth required.
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /debug/vars", expvar.Handler())

	mux.HandleFunc("POST /v1/chat", s.auth(s.handleChat))
	mux.HandleFunc("POST /v1/memories", s.auth(s.handleCreateMemory))
	mux.HandleFunc("POST /v1/memories/search", s.auth(s.handleSearchMemories))
	mux.HandleFunc("DELETE /v1/memories/{id}", s.auth(s.handleDeleteMemory))
	mux.HandleFunc("GET /v1/providers", s.auth(s.handleProviders))
	mux.HandleFunc("GET /v1/stats", s.auth(s.handleStats))

	return mux
}

// --- middleware ---

// auth wraps a handler with Bearer token authentication when authToken is set.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// --- handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.orch.Chat(r.Context(), req)
	switch {
	case errors.Is(err, orchestrator.ErrInvalidRequest):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, orchestrator.ErrExhausted):
		// The degraded body is still the answer; signal the condition with
		// the status code.
		s.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	case err != nil:
		s.logger.Error("chat failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "chat failed")
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// createMemoryRequest is the body accepted by POST /v1/memories.
type createMemoryRequest struct {
	OwnerID        string           `json:"owner_id"`
	Content        string           `json:"content"`
	ConversationID string           `json:"conversation_id"`
	Priority       string           `json:"priority"`
	Retention      models.Retention `json:"retention"`
	Tags           []string         `json:"tags"`
	Importance     float64          `json:"importance"`
}

func (s *Server) handleCreateMemory(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req createMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.writer.Store(r.Context(), req.OwnerID, req.Content, memory.WriteMeta{
		ConversationID: req.ConversationID,
		Priority:       req.Priority,
		Retention:      req.Retention,
		Tags:           req.Tags,
		Importance:     req.Importance,
	})
	if err != nil {
		if errors.Is(err, memory.ErrInvalidInput) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("failed to store memory", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to store memory")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"id": rec.ID})
}

// searchMemoriesRequest is the body accepted by POST /v1/memories/search.
type searchMemoriesRequest struct {
	OwnerID       string            `json:"owner_id"`
	Query         string            `json:"query"`
	Limit         int               `json:"limit"`
	MinSimilarity float64           `json:"min_similarity"`
	Mode          models.SearchMode `json:"mode"`
}

// searchMemoriesResponse is returned by POST /v1/memories/search.
type searchMemoriesResponse struct {
	Memories []models.ScoredMemory `json:"memories"`
}

func (s *Server) handleSearchMemories(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req searchMemoriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := s.retriever.Search(r.Context(), models.MemoryQuery{
		OwnerID:       req.OwnerID,
		Text:          req.Query,
		Limit:         req.Limit,
		MinSimilarity: req.MinSimilarity,
		Mode:          req.Mode,
	})
	if err != nil {
		if errors.Is(err, memory.ErrInvalidInput) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("failed to search memories", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to search memories")
		return
	}

	if results == nil {
		results = []models.ScoredMemory{}
	}
	s.writeJSON(w, http.StatusOK, searchMemoriesResponse{Memories: results})
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ownerID := r.URL.Query().Get("owner_id")
	if id == "" || ownerID == "" {
		s.writeError(w, http.StatusBadRequest, "id and owner_id are required")
		return
	}

	if err := s.store.MarkInactive(r.Context(), ownerID, id); err != nil {
		if errors.Is(err, memstore.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "memory not found")
			return
		}
		s.logger.Error("failed to delete memory", "id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete memory")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.tracker.Snapshot()

	// Every registered provider appears, healthy-by-default when it has no
	// recorded outcomes yet.
	out := make(map[string]models.ProviderHealth, len(s.registry.Names()))
	for _, name := range s.registry.Names() {
		if h, ok := snapshot[name]; ok {
			out[name] = h
		} else {
			out[name] = models.ProviderHealth{Available: true}
		}
	}

	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("failed to get stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// --- helpers ---

// writeJSON encodes v as JSON and writes it to w with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(v); encErr != nil {
		s.logger.Error("failed to encode response", "error", encErr)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// Shutdown gracefully shuts down an http.Server with the given timeout.
// This is a convenience helper used by the serve command.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
