package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/taxquill/taxquill/internal/model"
)

func deductionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deductions",
		Short: "Manage calculator-originated deductions",
		Long: `Record and list standalone deductions (mileage, home office, QBI) that
come from calculators rather than bank-feed transactions. They count toward
the annual summary but never toward a single quarter.`,
	}

	cmd.AddCommand(deductionsAddCmd())
	cmd.AddCommand(deductionsListCmd())
	return cmd
}

func deductionsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a deduction",
		Long: `Examples:
  taxquill deductions add --owner me --year 2025 --type mileage --amount 1340.50
  taxquill deductions add --owner me --year 2025 --type home_office --amount 1500 --savings 330`,
		RunE: runDeductionsAdd,
	}

	cmd.Flags().StringP("owner", "o", "", "owner id (required)")
	cmd.Flags().IntP("year", "y", 0, "tax year (required)")
	cmd.Flags().String("type", "", "deduction type, e.g. mileage, home_office, qbi (required)")
	cmd.Flags().Float64("amount", 0, "deduction amount (required)")
	cmd.Flags().Float64("savings", 0, "estimated tax savings")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func runDeductionsAdd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	owner, _ := cmd.Flags().GetString("owner")
	year, _ := cmd.Flags().GetInt("year")
	dType, _ := cmd.Flags().GetString("type")
	amount, _ := cmd.Flags().GetFloat64("amount")
	savings, _ := cmd.Flags().GetFloat64("savings")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	deduction := &model.Deduction{
		OwnerID:    owner,
		Type:       dType,
		TaxYear:    year,
		Amount:     amount,
		TaxSavings: savings,
	}
	if err := store.SaveDeduction(ctx, deduction); err != nil {
		return fmt.Errorf("failed to save deduction: %w", err)
	}

	fmt.Printf("Recorded %s deduction of %.2f for %d (id %s)\n", dType, amount, year, deduction.ID)
	return nil
}

func deductionsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deductions for a tax year",
		RunE:  runDeductionsList,
	}

	cmd.Flags().StringP("owner", "o", "", "owner id (required)")
	cmd.Flags().IntP("year", "y", 0, "tax year (required)")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("year")

	return cmd
}

func runDeductionsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	owner, _ := cmd.Flags().GetString("owner")
	year, _ := cmd.Flags().GetInt("year")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	deductions, err := store.ListDeductions(ctx, owner, year)
	if err != nil {
		return fmt.Errorf("failed to list deductions: %w", err)
	}
	if len(deductions) == 0 {
		fmt.Println("No deductions recorded.")
		return nil
	}

	var total float64
	for _, d := range deductions {
		fmt.Printf("%s  %-14s %12.2f\n", d.ID, d.Type, d.Amount)
		total += d.Amount
	}
	fmt.Printf("Total: %.2f\n", total)
	return nil
}
