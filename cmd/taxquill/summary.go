package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/taxquill/taxquill/internal/tax"
)

func summaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the tax summary for a year or quarter",
		Long: `Compute gross income, deductible expenses, net profit, self-employment
tax, and the estimated quarterly payment from the current transaction and
deduction data. Nothing is cached; edits show up immediately.

Examples:
  taxquill summary --owner me --year 2025
  taxquill summary --owner me --year 2025 --quarter 2
  taxquill summary --owner me --year 2025 --json`,
		RunE: runSummary,
	}

	cmd.Flags().StringP("owner", "o", "", "owner id (required)")
	cmd.Flags().IntP("year", "y", 0, "tax year (required)")
	cmd.Flags().IntP("quarter", "q", 0, "calendar quarter (1-4, 0 = whole year)")
	cmd.Flags().Bool("json", false, "print the raw JSON summary")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("year")

	return cmd
}

func runSummary(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	owner, _ := cmd.Flags().GetString("owner")
	year, _ := cmd.Flags().GetInt("year")
	quarter, _ := cmd.Flags().GetInt("quarter")
	asJSON, _ := cmd.Flags().GetBool("json")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	// Classification is not reachable from the summary path, so no model
	// client is wired.
	pipeline, err := buildPipeline(store, nil, slog.Default())
	if err != nil {
		return err
	}

	summary, err := pipeline.Summary(ctx, owner, year, quarter)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	printSummary(summary, year)
	return nil
}

func printSummary(summary *tax.Summary, year int) {
	if summary.Quarter != 0 {
		fmt.Printf("Tax summary for Q%d %d\n\n", summary.Quarter, year)
	} else {
		fmt.Printf("Tax summary for %d\n\n", year)
	}

	fmt.Printf("  Gross income:     %12.2f\n", summary.GrossIncome)
	fmt.Printf("  Total expenses:   %12.2f\n", summary.TotalExpenses)
	fmt.Printf("  Net profit:       %12.2f\n", summary.NetProfit)

	if summary.SelfEmployment.Total > 0 {
		fmt.Printf("\nSelf-employment tax\n")
		fmt.Printf("  Net earnings:     %12.2f\n", summary.SelfEmployment.NetEarnings)
		fmt.Printf("  Social Security:  %12.2f\n", summary.SelfEmployment.SocialSecurity)
		fmt.Printf("  Medicare:         %12.2f\n", summary.SelfEmployment.Medicare)
		fmt.Printf("  Total:            %12.2f\n", summary.SelfEmployment.Total)
		fmt.Printf("  Deductible half:  %12.2f\n", summary.SelfEmployment.DeductibleHalf)
	}

	fmt.Printf("\n  Estimated quarterly payment: %.2f\n", summary.EstimatedQuarterlyPayment)
	fmt.Printf("  Effective tax rate: %.1f%%\n", summary.EffectiveTaxRate*100)

	if len(summary.CategoryBreakdown) > 0 {
		fmt.Printf("\nDeductions by category\n")
		names := make([]string, 0, len(summary.CategoryBreakdown))
		for name := range summary.CategoryBreakdown {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-28s %12.2f\n", name, summary.CategoryBreakdown[name])
		}
	}
}
