package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func drainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Classify pending queue entries",
		Long: `Run a batch of pending queue entries through the classifier. Each entry
succeeds or fails on its own; failures are recorded on the entry and
retried on later drains until the retry ceiling is reached.`,
		RunE: runDrain,
	}

	cmd.Flags().Int("batch", 0, "entries to process this run (default: pipeline.batch_size)")

	return cmd
}

func runDrain(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	batch, _ := cmd.Flags().GetInt("batch")

	deps, err := initPipeline(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	processed, err := deps.engine.DrainQueue(ctx, batch)
	if err != nil {
		return fmt.Errorf("queue drain failed: %w", err)
	}

	slog.Info("Drain complete", "processed", processed)
	return nil
}
