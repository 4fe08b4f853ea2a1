// Package mcp implements the Model Context Protocol server for synapse.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/sentientmesh/synapse/internal/health"
	"github.com/sentientmesh/synapse/internal/memory"
	"github.com/sentientmesh/synapse/internal/memstore"
	"github.com/sentientmesh/synapse/internal/models"
	"github.com/sentientmesh/synapse/internal/orchestrator"
	"github.com/sentientmesh/synapse/internal/provider"
)

// Server wraps an MCPServer with synapse dependencies.
type Server struct {
	mcp       *mcpserver.MCPServer
	orch      *orchestrator.Orchestrator
	writer    *memory.Writer
	retriever *memory.Retriever
	store     memstore.Store
	registry  *provider.Registry
	tracker   *health.Tracker
	logger    *slog.Logger
}

// NewServer creates a new MCP server exposing the chat and memory tools.
func NewServer(
	orch *orchestrator.Orchestrator,
	writer *memory.Writer,
	retriever *memory.Retriever,
	store memstore.Store,
	registry *provider.Registry,
	tracker *health.Tracker,
	logger *slog.Logger,
) *Server {
	s := &Server{
		orch:      orch,
		writer:    writer,
		retriever: retriever,
		store:     store,
		registry:  registry,
		tracker:   tracker,
		logger:    logger,
	}

	mcpSrv := mcpserver.NewMCPServer(
		"synapse",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
	)

	mcpSrv.AddTool(buildChatTool(), s.handleChat)
	mcpSrv.AddTool(buildRememberTool(), s.handleRemember)
	mcpSrv.AddTool(buildRecallTool(), s.handleRecall)
	mcpSrv.AddTool(buildForgetTool(), s.handleForget)
	mcpSrv.AddTool(buildProviderHealthTool(), s.handleProviderHealth)

	s.mcp = mcpSrv
	return s
}

// MCPServer returns the underlying mcp-go MCPServer for use with ServeStdio.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// HandleChat is the exported handler for the "chat" tool.
// It is exposed for direct testing without the mcp-go transport layer.
func (s *Server) HandleChat(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleChat(ctx, req)
}

// HandleRemember is the exported handler for the "remember" tool.
func (s *Server) HandleRemember(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleRemember(ctx, req)
}

// HandleRecall is the exported handler for the "recall" tool.
func (s *Server) HandleRecall(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleRecall(ctx, req)
}

// HandleForget is the exported handler for the "forget" tool.
func (s *Server) HandleForget(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleForget(ctx, req)
}

// HandleProviderHealth is the exported handler for the "provider_health" tool.
func (s *Server) HandleProviderHealth(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleProviderHealth(ctx, req)
}

// --- helpers ---

// toolResultJSON marshals v to JSON and returns it as a tool text result.
func toolResultJSON(v any) (*mcpgo.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshaling result: %w", err)
	}
	return mcpgo.NewToolResultText(string(b)), nil
}

// --- tool definitions ---

func buildChatTool() mcpgo.Tool {
	return mcpgo.NewTool("chat",
		mcpgo.WithDescription("Send a message through the provider fallback chain. Retrieves relevant memories and captures the exchange."),
		mcpgo.WithString("owner_id",
			mcpgo.Required(),
			mcpgo.Description("The user on whose behalf the message is sent"),
		),
		mcpgo.WithString("message",
			mcpgo.Required(),
			mcpgo.Description("The chat message"),
		),
		mcpgo.WithString("provider",
			mcpgo.Description("Pin a specific provider as the first candidate"),
		),
		mcpgo.WithString("model",
			mcpgo.Description("Pin a specific model on the pinned provider"),
		),
	)
}

func buildRememberTool() mcpgo.Tool {
	return mcpgo.NewTool("remember",
		mcpgo.WithDescription("Store a memory for an owner. Embeds the content and persists it with importance scoring."),
		mcpgo.WithString("owner_id",
			mcpgo.Required(),
			mcpgo.Description("The user the memory belongs to"),
		),
		mcpgo.WithString("content",
			mcpgo.Required(),
			mcpgo.Description("The text content to remember"),
		),
		mcpgo.WithString("priority",
			mcpgo.Description("Set to \"high\" to pin the memory long-term"),
		),
		mcpgo.WithString("retention",
			mcpgo.Description("Retention policy: default, long_term, or session (default: default)"),
		),
	)
}

func buildRecallTool() mcpgo.Tool {
	return mcpgo.NewTool("recall",
		mcpgo.WithDescription("Retrieve an owner's relevant memories using hybrid vector+lexical search with importance/recency ranking."),
		mcpgo.WithString("owner_id",
			mcpgo.Required(),
			mcpgo.Description("The user whose memories to search"),
		),
		mcpgo.WithString("query",
			mcpgo.Required(),
			mcpgo.Description("The query to recall memories for"),
		),
		mcpgo.WithNumber("limit",
			mcpgo.Description("Maximum number of results (default: policy limit)"),
		),
		mcpgo.WithString("mode",
			mcpgo.Description("Search mode: vector, lexical, or hybrid (default: hybrid)"),
		),
	)
}

func buildForgetTool() mcpgo.Tool {
	return mcpgo.NewTool("forget",
		mcpgo.WithDescription("Deactivate one of the owner's memories by ID. The sweeper hard-deletes it after the grace period."),
		mcpgo.WithString("owner_id",
			mcpgo.Required(),
			mcpgo.Description("The user the memory belongs to"),
		),
		mcpgo.WithString("id",
			mcpgo.Required(),
			mcpgo.Description("The ID of the memory to forget"),
		),
	)
}

func buildProviderHealthTool() mcpgo.Tool {
	return mcpgo.NewTool("provider_health",
		mcpgo.WithDescription("Get the rolling health of every registered provider: availability, average latency, failure rate."),
	)
}

// --- tool handlers ---

// handleChat routes one chat turn through the orchestrator. A degraded
// response is reported as content, not as a tool error, because it is the
// system's answer.
func (s *Server) handleChat(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	ownerID := req.GetString("owner_id", "")
	message := req.GetString("message", "")
	if strings.TrimSpace(ownerID) == "" || strings.TrimSpace(message) == "" {
		return mcpgo.NewToolResultError("owner_id and message are required"), nil
	}

	resp, err := s.orch.Chat(ctx, models.ChatRequest{
		OwnerID:  ownerID,
		Message:  message,
		Provider: req.GetString("provider", ""),
		Model:    req.GetString("model", ""),
	})
	if err != nil && !errors.Is(err, orchestrator.ErrExhausted) {
		return mcpgo.NewToolResultErrorf("chat failed: %s", err.Error()), nil
	}

	return toolResultJSON(resp)
}

// handleRemember stores one memory through the writer.
func (s *Server) handleRemember(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	ownerID := req.GetString("owner_id", "")
	content := req.GetString("content", "")

	rec, err := s.writer.Store(ctx, ownerID, content, memory.WriteMeta{
		Priority:  req.GetString("priority", ""),
		Retention: models.Retention(req.GetString("retention", "")),
	})
	if err != nil {
		return mcpgo.NewToolResultErrorf("remember failed: %s", err.Error()), nil
	}

	s.logger.Info("mcp: remember stored memory", "id", rec.ID, "owner", ownerID)
	return toolResultJSON(map[string]any{
		"id":     rec.ID,
		"stored": true,
	})
}

// handleRecall runs a hybrid search for the owner.
func (s *Server) handleRecall(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	results, err := s.retriever.Search(ctx, models.MemoryQuery{
		OwnerID: req.GetString("owner_id", ""),
		Text:    req.GetString("query", ""),
		Limit:   req.GetInt("limit", 0),
		Mode:    models.SearchMode(req.GetString("mode", "")),
	})
	if err != nil {
		return mcpgo.NewToolResultErrorf("recall failed: %s", err.Error()), nil
	}

	memories := make([]map[string]any, 0, len(results))
	for _, r := range results {
		memories = append(memories, map[string]any{
			"id":         r.Record.ID,
			"content":    r.Record.Content,
			"similarity": r.Similarity,
			"rank":       r.Rank,
			"created_at": r.Record.CreatedAt,
		})
	}
	return toolResultJSON(map[string]any{
		"memories": memories,
		"count":    len(memories),
	})
}

// handleForget deactivates an owner's memory by ID.
func (s *Server) handleForget(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	ownerID := req.GetString("owner_id", "")
	id := req.GetString("id", "")
	if strings.TrimSpace(ownerID) == "" || strings.TrimSpace(id) == "" {
		return mcpgo.NewToolResultError("owner_id and id are required"), nil
	}

	if err := s.store.MarkInactive(ctx, ownerID, id); err != nil {
		if errors.Is(err, memstore.ErrNotFound) {
			return mcpgo.NewToolResultErrorf("memory %s not found", id), nil
		}
		return mcpgo.NewToolResultErrorf("forget failed: %s", err.Error()), nil
	}

	s.logger.Info("mcp: forget deactivated memory", "id", id, "owner", ownerID)
	return toolResultJSON(map[string]any{"deleted": true})
}

// handleProviderHealth reports the tracker's snapshot for every registered
// provider, healthy-by-default when it has no recorded outcomes.
func (s *Server) handleProviderHealth(_ context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	snapshot := s.tracker.Snapshot()

	out := make(map[string]models.ProviderHealth, len(s.registry.Names()))
	for _, name := range s.registry.Names() {
		if h, ok := snapshot[name]; ok {
			out[name] = h
		} else {
			out[name] = models.ProviderHealth{Available: true}
		}
	}
	return toolResultJSON(out)
}
