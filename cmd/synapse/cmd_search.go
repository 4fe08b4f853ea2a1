package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentientmesh/synapse/internal/memory"
	"github.com/sentientmesh/synapse/internal/models"
)

func searchCmd() *cobra.Command {
	var (
		ownerID       string
		limit         int
		minSimilarity float64
		mode          string
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search an owner's memories with hybrid ranking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("search: connecting to store: %w", err)
			}
			defer func() { _ = st.Close() }()

			policy := memory.SearchPolicy{
				Limit:         cfg.Memory.SearchLimit,
				MinSimilarity: cfg.Memory.MinSimilarity,
				Mode:          cfg.SearchMode(),
			}
			retriever := memory.NewRetriever(st, newEmbedder(logger), policy, cfg.Memory.Retention, logger)

			results, err := retriever.Search(ctx, models.MemoryQuery{
				OwnerID:       ownerID,
				Text:          args[0],
				Limit:         limit,
				MinSimilarity: minSimilarity,
				Mode:          models.SearchMode(mode),
			})
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if len(results) == 0 {
				fmt.Println("No memories found.")
				return nil
			}
			for i, r := range results {
				fmt.Printf("%d. [rank %.3f, sim %.3f] %s\n   id=%s created=%s\n",
					i+1, r.Rank, r.Similarity, truncate(r.Record.Content, 100),
					r.Record.ID, r.Record.CreatedAt.Format("2006-01-02"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&ownerID, "owner", "local", "owner ID whose memories to search")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (0 = policy default)")
	cmd.Flags().Float64Var(&minSimilarity, "min-similarity", 0, "similarity floor (0 = policy default)")
	cmd.Flags().StringVar(&mode, "mode", "", "search mode (vector|lexical|hybrid, empty = policy default)")
	return cmd
}
