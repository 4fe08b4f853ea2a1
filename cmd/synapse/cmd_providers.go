package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func providersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List registered providers and their chain order",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			registry, err := newRegistry(logger)
			if err != nil {
				return fmt.Errorf("providers: %w", err)
			}

			for _, name := range registry.Names() {
				p, err := registry.Get(name)
				if err != nil {
					return fmt.Errorf("providers: %w", err)
				}
				profile := p.Profile()
				fmt.Printf("%s (priority %d)\n", profile.Name, profile.Priority)
				fmt.Printf("  models:     %v\n", profile.Models)
				fmt.Printf("  affinities: %v\n", profile.Affinities)
			}
			return nil
		},
	}
	return cmd
}
