package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/ecomstack/shelfsort/internal/config"
)

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Queue recently updated products for classification",
		Long: `List products updated within the scan window and queue any the pipeline
has not seen before. Products already queued, processed, or errored are
left untouched.`,
		RunE: runScan,
	}

	cmd.Flags().Duration("window", 0, "how far back to scan (default: pipeline.scan_window, 24h)")
	cmd.Flags().String("from", "", "scan from an explicit RFC 3339 timestamp instead")

	return cmd
}

func runScan(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	window, _ := cmd.Flags().GetDuration("window")
	if window <= 0 {
		window = config.ScanWindow()
	}
	since := time.Now().Add(-window)

	if from, _ := cmd.Flags().GetString("from"); from != "" {
		parsed, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return fmt.Errorf("invalid --from timestamp: %w", err)
		}
		since = parsed
	}

	deps, err := initPipeline(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	queued, err := deps.engine.ScanNewProducts(ctx, since)
	if err != nil {
		return fmt.Errorf("product scan failed: %w", err)
	}

	slog.Info("Scan complete", "since", since.Format(time.RFC3339), "queued", queued)
	return nil
}
