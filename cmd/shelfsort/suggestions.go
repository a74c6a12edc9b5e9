package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ecomstack/shelfsort/internal/model"
)

func suggestionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggestions",
		Short: "Review proposed new collections",
		Long: `Products that fit no existing collection accumulate as suggestions. A
suggestion is "ready" once enough distinct products back it; approve or
reject moves it to a terminal state.`,
	}

	cmd.AddCommand(suggestionsListCmd())
	cmd.AddCommand(suggestionsReviewCmd("approve", model.SuggestionApproved))
	cmd.AddCommand(suggestionsReviewCmd("reject", model.SuggestionRejected))

	return cmd
}

func suggestionsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List collection suggestions",
		RunE:  runSuggestionsList,
	}

	cmd.Flags().Bool("ready", false, "only suggestions with enough backing products")

	return cmd
}

func runSuggestionsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var records []model.SuggestionRecord
	if ready, _ := cmd.Flags().GetBool("ready"); ready {
		records, err = store.GetReadySuggestions(ctx, minReadyCount())
	} else {
		records, err = store.ListSuggestions(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to list suggestions: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No suggestions.")
		return nil
	}

	fmt.Printf("%-5s %-30s %-25s %-10s %s\n", "ID", "SUGGESTED NAME", "PARENT", "STATUS", "PRODUCTS")
	for _, rec := range records {
		fmt.Printf("%-5d %-30s %-25s %-10s %d\n",
			rec.ID, rec.SuggestedName, rec.ParentCollection, rec.Status, rec.ProductCount)
	}

	return nil
}

func suggestionsReviewCmd(use string, status model.SuggestionStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: use + " a collection suggestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("suggestion id must be an integer: %q", args[0])
			}

			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.UpdateSuggestionStatus(ctx, id, status); err != nil {
				return fmt.Errorf("failed to update suggestion %d: %w", id, err)
			}

			fmt.Printf("Suggestion %d marked %s.\n", id, status)
			return nil
		},
	}
}

func minReadyCount() int {
	if n := viper.GetInt("suggestions.min_products"); n > 0 {
		return n
	}
	return 5
}
