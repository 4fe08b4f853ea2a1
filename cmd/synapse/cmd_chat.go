package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentientmesh/synapse/internal/models"
	"github.com/sentientmesh/synapse/internal/orchestrator"
)

func chatCmd() *cobra.Command {
	var (
		ownerID        string
		providerName   string
		model          string
		conversationID string
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send one chat message through the fallback chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			a, err := buildApp(logger)
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			defer a.Close()

			resp, err := a.orch.Chat(cmd.Context(), models.ChatRequest{
				OwnerID:        ownerID,
				Message:        args[0],
				ConversationID: conversationID,
				Provider:       providerName,
				Model:          model,
			})
			if err != nil && !errors.Is(err, orchestrator.ErrExhausted) {
				return fmt.Errorf("chat: %w", err)
			}

			fmt.Println(resp.Content)
			if resp.Degraded {
				fmt.Printf("\n[degraded: no provider answered after %d attempts]\n", resp.Attempts)
				return nil
			}
			fmt.Printf("\n[%s/%s, query=%s, memories=%d, attempts=%d]\n",
				resp.Provider, resp.Model, resp.QueryType, resp.MemoriesUsed, resp.Attempts)
			return nil
		},
	}

	cmd.Flags().StringVar(&ownerID, "owner", "local", "owner ID the message is sent as")
	cmd.Flags().StringVar(&providerName, "provider", "", "pin a provider as the first candidate")
	cmd.Flags().StringVar(&model, "model", "", "pin a model on the pinned provider")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation ID for the captured memory")
	return cmd
}
