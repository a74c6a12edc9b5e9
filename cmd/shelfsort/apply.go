package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func applyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Push accepted assignments to the catalog",
		Long: `Take processed queue entries and add their products to the assigned
collections, keeping only assignments whose confidence clears the
acceptance threshold. Level-3 membership stays within the configured
cap.`,
		RunE: runApply,
	}

	cmd.Flags().Int("limit", 0, "entries to apply this run")
	cmd.Flags().String("product", "", "apply a single product by its catalog id")

	return cmd
}

func runApply(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	deps, err := initPipeline(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	if productID, _ := cmd.Flags().GetString("product"); productID != "" {
		if err := deps.engine.ApplyAccepted(ctx, productID); err != nil {
			return err
		}
		slog.Info("Assignments applied", "product_id", productID)
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	applied, err := deps.engine.ApplyAssignments(ctx, limit)
	if err != nil {
		return fmt.Errorf("apply failed: %w", err)
	}

	slog.Info("Apply complete", "applied", applied)
	return nil
}
