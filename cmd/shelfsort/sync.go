package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Rebuild the collection hierarchy from the catalog",
		Long: `Fetch every custom and smart collection from the storefront and rebuild
the local hierarchy snapshot. Collection levels are derived from title
structure ("Men > Shoes > Running" is a level-3 collection).`,
		RunE: runSync,
	}
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	deps, err := initPipeline(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	count, err := deps.engine.SyncHierarchy(ctx)
	if err != nil {
		return fmt.Errorf("hierarchy sync failed: %w", err)
	}

	slog.Info("Hierarchy synced", "collections", count)
	return nil
}
