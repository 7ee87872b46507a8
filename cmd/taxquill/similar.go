package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/taxquill/taxquill/internal/engine"
	"github.com/taxquill/taxquill/internal/model"
)

func similarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "similar <vendor>",
		Short: "Find pending transactions with the same vendor fingerprint",
		Long: `Find transactions whose normalized vendor fingerprint matches the given
vendor text. Useful for previewing what an auto-sort rule would touch.

Examples:
  taxquill similar "STARBUCKS #4521" --owner me --year 2025`,
		Args: cobra.ExactArgs(1),
		RunE: runSimilar,
	}

	cmd.Flags().StringP("owner", "o", "", "owner id (required)")
	cmd.Flags().IntP("year", "y", 0, "tax year (0 = all years)")
	cmd.Flags().String("exclude", "", "transaction id to exclude")
	cmd.Flags().String("status", "pending", "status to match")
	cmd.Flags().String("kind", "", "kind to match (expense, income)")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func runSimilar(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	owner, _ := cmd.Flags().GetString("owner")
	year, _ := cmd.Flags().GetInt("year")
	exclude, _ := cmd.Flags().GetString("exclude")
	status, _ := cmd.Flags().GetString("status")
	kind, _ := cmd.Flags().GetString("kind")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	matcher := engine.NewSimilarityMatcher(store, slog.Default())
	matches, err := matcher.FindSimilar(ctx, engine.SimilarQuery{
		OwnerID:   owner,
		Vendor:    args[0],
		ExcludeID: exclude,
		Status:    model.TransactionStatus(status),
		Kind:      model.TransactionKind(kind),
		TaxYear:   year,
	})
	if err != nil {
		return err
	}

	if len(matches) == 0 {
		fmt.Println("No similar transactions found.")
		return nil
	}

	for _, txn := range matches {
		fmt.Printf("%s  %s  %10.2f  %-12s  %s\n",
			txn.ID, txn.Date.Format("2006-01-02"), txn.Amount, txn.Status, txn.Vendor)
	}
	fmt.Printf("%d similar transaction(s)\n", len(matches))

	return nil
}
