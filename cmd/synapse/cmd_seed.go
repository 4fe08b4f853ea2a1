package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sentientmesh/synapse/internal/memory"
	"github.com/sentientmesh/synapse/internal/models"
)

// seedEntry is one line of the JSONL seed file.
type seedEntry struct {
	OwnerID    string   `json:"owner_id"`
	Content    string   `json:"content"`
	Priority   string   `json:"priority,omitempty"`
	Retention  string   `json:"retention,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Importance float64  `json:"importance,omitempty"`
}

func seedCmd() *cobra.Command {
	var defaultOwner string

	cmd := &cobra.Command{
		Use:   "seed [facts.jsonl]",
		Short: "Pre-load memories from a JSON lines file",
		Long:  "Reads one JSON object per line ({owner_id, content, priority?, retention?, tags?, importance?}) and stores each through the memory writer. Lines without an owner_id use --owner.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("seed: opening %s: %w", args[0], err)
			}
			defer func() { _ = f.Close() }()

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("seed: connecting to store: %w", err)
			}
			defer func() { _ = st.Close() }()

			if err = st.EnsureCollection(ctx); err != nil {
				return fmt.Errorf("seed: ensuring collection: %w", err)
			}

			writer := memory.NewWriter(st, newEmbedder(logger), cfg.Memory.Retention, cfg.Memory.QueueSize, cfg.Memory.Workers, logger)
			defer writer.Close()

			stored, failed, line := 0, 0, 0
			scanner := bufio.NewScanner(f)
			scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
			for scanner.Scan() {
				line++
				raw := scanner.Bytes()
				if len(raw) == 0 {
					continue
				}

				var entry seedEntry
				if err := json.Unmarshal(raw, &entry); err != nil {
					logger.Warn("seed: skipping malformed line", "line", line, "error", err)
					failed++
					continue
				}
				if entry.OwnerID == "" {
					entry.OwnerID = defaultOwner
				}

				if _, err := writer.Store(ctx, entry.OwnerID, entry.Content, memory.WriteMeta{
					Priority:   entry.Priority,
					Retention:  models.Retention(entry.Retention),
					Tags:       entry.Tags,
					Importance: entry.Importance,
				}); err != nil {
					logger.Warn("seed: storing line failed", "line", line, "error", err)
					failed++
					continue
				}
				stored++
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("seed: reading %s: %w", args[0], err)
			}

			fmt.Printf("Seeded %d memories (%d failed)\n", stored, failed)
			return nil
		},
	}

	cmd.Flags().StringVar(&defaultOwner, "owner", "local", "owner ID for lines without one")
	return cmd
}
