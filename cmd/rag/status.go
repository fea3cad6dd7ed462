package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the number of stored chunks in the configured collection",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "store:      %s\n", cfg.VectorStore.Type)
	fmt.Fprintf(cmd.OutOrStdout(), "collection: %s\n", store.Collection())
	fmt.Fprintf(cmd.OutOrStdout(), "dimension:  %d\n", store.Dimension())
	fmt.Fprintf(cmd.OutOrStdout(), "points:     %d\n", n)
	return nil
}
