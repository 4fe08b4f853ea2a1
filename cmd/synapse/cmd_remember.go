package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sentientmesh/synapse/internal/memory"
	"github.com/sentientmesh/synapse/internal/models"
)

func rememberCmd() *cobra.Command {
	var (
		ownerID    string
		priority   string
		retention  string
		tags       string
		importance float64
	)

	cmd := &cobra.Command{
		Use:   "remember [memory text]",
		Short: "Store a new memory for an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("remember: connecting to store: %w", err)
			}
			defer func() { _ = st.Close() }()

			if err = st.EnsureCollection(ctx); err != nil {
				return fmt.Errorf("remember: ensuring collection: %w", err)
			}

			var tagList []string
			if tags != "" {
				tagList = strings.Split(tags, ",")
				for i := range tagList {
					tagList[i] = strings.TrimSpace(tagList[i])
				}
			}

			writer := memory.NewWriter(st, newEmbedder(logger), cfg.Memory.Retention, 1, 1, logger)
			defer writer.Close()

			rec, err := writer.Store(ctx, ownerID, args[0], memory.WriteMeta{
				Priority:   priority,
				Retention:  models.Retention(retention),
				Tags:       tagList,
				Importance: importance,
			})
			if err != nil {
				return fmt.Errorf("remember: %w", err)
			}

			fmt.Printf("Stored memory %s (importance %.2f)\n", rec.ID, rec.Importance)
			return nil
		},
	}

	cmd.Flags().StringVar(&ownerID, "owner", "local", "owner ID the memory belongs to")
	cmd.Flags().StringVar(&priority, "priority", "", "set to \"high\" to pin the memory long-term")
	cmd.Flags().StringVar(&retention, "retention", "", "retention policy (default|long_term|session)")
	cmd.Flags().StringVar(&tags, "tags", "", "comma-separated tags")
	cmd.Flags().Float64Var(&importance, "importance", 0, "explicit importance 0.0-1.0 (0 = heuristic)")
	return cmd
}
