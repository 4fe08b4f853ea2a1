package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentientmesh/synapse/internal/memory"
)

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one expiry sweep pass",
		Long:  "Marks expired records inactive and hard-deletes records that have been inactive longer than the grace period. The serve command runs this on an interval; this command runs a single pass.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("sweep: connecting to store: %w", err)
			}
			defer func() { _ = st.Close() }()

			sweeper := memory.NewSweeper(st, cfg.Memory.SweepInterval, cfg.Memory.GracePeriod, logger)
			result, err := sweeper.Sweep(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}

			fmt.Printf("Expired: %d, deleted: %d\n", result.Expired, result.Deleted)
			return nil
		},
	}
	return cmd
}
