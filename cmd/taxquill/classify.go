package main

import (
	"fmt"
	"log/slog"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taxquill/taxquill/internal/engine"
	"github.com/taxquill/taxquill/internal/llm"
	"github.com/taxquill/taxquill/internal/model"
	"github.com/taxquill/taxquill/internal/service"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify pending transactions",
		Long: `Classify all pending transactions for an owner with AI assistance.

Cached fingerprints and existing auto-sort rules resolve without a model
call; only genuinely new vendors go out to the classification service.

Examples:
  taxquill classify --owner me              # Classify all pending transactions
  taxquill classify --owner me --year 2025  # Limit to one tax year`,
		RunE: runClassifyCmd,
	}

	cmd.Flags().StringP("owner", "o", "", "owner id (required)")
	cmd.Flags().IntP("year", "y", 0, "tax year to classify (0 = all years)")
	_ = cmd.MarkFlagRequired("owner")

	_ = viper.BindPFlag("classification.owner", cmd.Flags().Lookup("owner"))
	_ = viper.BindPFlag("classification.year", cmd.Flags().Lookup("year"))

	return cmd
}

func runClassifyCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	owner := viper.GetString("classification.owner")
	year := viper.GetInt("classification.year")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	pending, err := store.ListTransactions(ctx, service.TransactionFilter{
		OwnerID: owner,
		TaxYear: year,
		Status:  model.StatusPending,
	})
	if err != nil {
		return fmt.Errorf("failed to list pending transactions: %w", err)
	}
	if len(pending) == 0 {
		fmt.Println("No pending transactions to classify.")
		return nil
	}

	classifier, err := llm.NewClassifier(llmConfig(), slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create classifier: %w", err)
	}
	defer func() { _ = classifier.Close() }()

	pipeline, err := buildPipeline(store, classifier, slog.Default())
	if err != nil {
		return err
	}

	ids := make([]string, len(pending))
	for i, txn := range pending {
		ids[i] = txn.ID
	}

	events, err := pipeline.Classify(ctx, ids)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(len(ids),
		progressbar.OptionSetDescription("Classifying"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	var failures []string
	var done engine.DoneEvent
	for event := range events {
		switch e := event.(type) {
		case engine.ProgressEvent:
			bar.Describe(fmt.Sprintf("Classified %s", e.Current))
			_ = bar.Add(1)
		case engine.ErrorEvent:
			failures = append(failures, e.Message)
		case engine.DoneEvent:
			done = e
		}
	}
	_ = bar.Finish()

	fmt.Printf("%d categorized, %d from cache\n", done.Successful, done.CachedCount)
	for _, message := range failures {
		fmt.Printf("  error: %s\n", message)
	}

	return nil
}
