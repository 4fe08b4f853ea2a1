package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentientmesh/synapse/internal/memstore"
)

func forgetCmd() *cobra.Command {
	var (
		ownerID string
		hard    bool
	)

	cmd := &cobra.Command{
		Use:   "forget [memory-id]",
		Short: "Deactivate (or hard-delete) one of an owner's memories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()
			id := args[0]

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("forget: connecting to store: %w", err)
			}
			defer func() { _ = st.Close() }()

			if hard {
				err = st.Delete(ctx, ownerID, id)
			} else {
				err = st.MarkInactive(ctx, ownerID, id)
			}
			if err != nil {
				if errors.Is(err, memstore.ErrNotFound) {
					return fmt.Errorf("forget: memory %s not found for owner %s", id, ownerID)
				}
				return fmt.Errorf("forget: %w", err)
			}

			if hard {
				fmt.Printf("Deleted memory %s\n", id)
			} else {
				fmt.Printf("Deactivated memory %s (hard-deleted after the grace period)\n", id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&ownerID, "owner", "local", "owner ID the memory belongs to")
	cmd.Flags().BoolVar(&hard, "hard", false, "delete immediately instead of deactivating")
	return cmd
}
