package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	synapsemcp "github.com/sentientmesh/synapse/internal/mcp"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP (Model Context Protocol) server over stdio",
		Long: `Starts an MCP JSON-RPC 2.0 server that reads from stdin and writes to stdout.
All diagnostic logs go to stderr so that stdout remains exclusively MCP protocol traffic.

Tools exposed:
  chat             — send a message through the provider fallback chain
  remember         — store a memory for an owner
  recall           — hybrid search over an owner's memories
  forget           — deactivate a memory by ID
  provider_health  — rolling health of every registered provider`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()

			a, err := buildApp(logger)
			if err != nil {
				return fmt.Errorf("mcp: %w", err)
			}
			defer a.Close()

			if err := a.store.EnsureCollection(cmd.Context()); err != nil {
				return fmt.Errorf("mcp: ensuring collection: %w", err)
			}

			go a.sweeper.Run(cmd.Context())

			srv := synapsemcp.NewServer(a.orch, a.writer, a.retriever, a.store, a.registry, a.tracker, logger)

			// Use a standard log.Logger pointing at stderr for the mcp-go error logger.
			errLogger := log.New(os.Stderr, "mcp: ", log.LstdFlags)

			logger.Info("mcp: synapse MCP server starting", "transport", "stdio")

			return mcpserver.ServeStdio(
				srv.MCPServer(),
				mcpserver.WithErrorLogger(errLogger),
			)
		},
	}

	return cmd
}
