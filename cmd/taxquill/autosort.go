package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/taxquill/taxquill/internal/engine"
)

func autosortCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autosort <vendor>",
		Short: "Create an auto-sort rule and apply it to pending transactions",
		Long: `Save a reusable rule for a vendor fingerprint and bulk-apply it to every
matching pending transaction in the tax year. The rule persists even when
nothing matches right now; future classification runs consult it first.

Examples:
  taxquill autosort "GITHUB.COM" --owner me --year 2025 \
      --label "Code hosting" --purpose "Development infrastructure" \
      --category "Software & Subscriptions"`,
		Args: cobra.ExactArgs(1),
		RunE: runAutosort,
	}

	cmd.Flags().StringP("owner", "o", "", "owner id (required)")
	cmd.Flags().IntP("year", "y", 0, "tax year (required)")
	cmd.Flags().String("label", "", "quick label (required)")
	cmd.Flags().String("purpose", "", "business purpose")
	cmd.Flags().String("category", "", "category to assign")
	cmd.Flags().Float64("pct", -1, "deduction percent (0-100, -1 = leave as is)")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("label")

	return cmd
}

func runAutosort(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	owner, _ := cmd.Flags().GetString("owner")
	year, _ := cmd.Flags().GetInt("year")
	label, _ := cmd.Flags().GetString("label")
	purpose, _ := cmd.Flags().GetString("purpose")
	category, _ := cmd.Flags().GetString("category")
	pct, _ := cmd.Flags().GetFloat64("pct")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	req := engine.ApplyRuleRequest{
		OwnerID:         owner,
		Vendor:          args[0],
		QuickLabel:      label,
		BusinessPurpose: purpose,
		Category:        category,
		TaxYear:         year,
	}
	if pct >= 0 {
		req.DeductionPct = &pct
	}

	ruleEngine := engine.NewAutoSortRuleEngine(store, slog.Default())
	count, err := ruleEngine.ApplyRule(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("%d transaction(s) auto-sorted\n", count)
	return nil
}
