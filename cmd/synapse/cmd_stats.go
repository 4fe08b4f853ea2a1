package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show memory collection statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("stats: connecting to store: %w", err)
			}
			defer func() { _ = st.Close() }()

			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}

			fmt.Printf("Total records:  %d\n", stats.TotalRecords)
			fmt.Printf("Active records: %d\n", stats.ActiveRecords)
			if len(stats.RecordsByOwner) > 0 {
				fmt.Println("By owner:")
				for owner, n := range stats.RecordsByOwner {
					fmt.Printf("  %s: %d\n", owner, n)
				}
			}
			return nil
		},
	}
	return cmd
}
