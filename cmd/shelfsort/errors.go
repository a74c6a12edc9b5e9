package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ecomstack/shelfsort/internal/model"
)

func errorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Inspect and retry failed queue entries",
	}

	cmd.AddCommand(errorsListCmd())
	cmd.AddCommand(errorsResetCmd())

	return cmd
}

func errorsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recently errored entries",
		RunE:  runErrorsList,
	}

	cmd.Flags().Int("limit", 20, "entries to show")

	return cmd
}

func runErrorsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	entries, err := store.GetRecentEntries(ctx, model.StatusError, limit)
	if err != nil {
		return fmt.Errorf("failed to list errored entries: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No errored entries.")
		return nil
	}

	fmt.Printf("%-15s %-40s %-8s %s\n", "PRODUCT ID", "TITLE", "RETRIES", "ERROR")
	for _, e := range entries {
		title := e.Title
		if len(title) > 40 {
			title = title[:37] + "..."
		}
		fmt.Printf("%-15s %-40s %-8d %s\n", e.ProductID, title, e.RetryCount, e.ErrorMessage)
	}

	return nil
}

func errorsResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Move all errored entries back to pending",
		Long: `Reset every errored entry to pending and clear its retry count, giving
entries that exhausted their retries another full round of attempts.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			reset, err := store.ResetErrorsToPending(ctx)
			if err != nil {
				return fmt.Errorf("failed to reset errored entries: %w", err)
			}

			fmt.Printf("Reset %d entries to pending.\n", reset)
			return nil
		},
	}
}
