package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/taxquill/taxquill/internal/cache"
	"github.com/taxquill/taxquill/internal/config"
	"github.com/taxquill/taxquill/internal/engine"
	"github.com/taxquill/taxquill/internal/llm"
	"github.com/taxquill/taxquill/internal/service"
	"github.com/taxquill/taxquill/internal/storage"
	"github.com/taxquill/taxquill/internal/tax"
)

// Social Security wage base used when the config file does not set one.
const defaultWageBase = 176100

// initStorage opens the SQLite database and runs migrations.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = "$HOME/.local/share/taxquill/taxquill.db"
	}
	dbPath = config.ExpandPath(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// llmConfig assembles the classifier configuration from viper.
func llmConfig() llm.Config {
	return llm.Config{
		Provider:    viper.GetString("llm.provider"),
		APIKey:      viper.GetString("llm.api_key"),
		Model:       viper.GetString("llm.model"),
		MaxRetries:  viper.GetInt("llm.max_retries"),
		RetryDelay:  viper.GetDuration("llm.retry_delay"),
		RateLimit:   viper.GetInt("llm.rate_limit"),
		Temperature: viper.GetFloat64("llm.temperature"),
		MaxTokens:   viper.GetInt("llm.max_tokens"),
	}
}

// buildPipeline wires the full pipeline façade: classification engine with
// its cache, tax engine, similarity, and auto-sort.
func buildPipeline(store service.Storage, classifier engine.Classifier, logger *slog.Logger) (*engine.Pipeline, error) {
	wageBase := viper.GetFloat64("tax.wage_base")
	if wageBase == 0 {
		wageBase = defaultWageBase
	}

	taxEngine, err := tax.NewEngine(tax.Config{WageBase: wageBase}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create tax engine: %w", err)
	}

	classificationEngine := engine.NewClassificationEngine(store, classifier, cache.New(), logger, engine.Options{
		BatchSize: viper.GetInt("classification.batch_size"),
	})

	return engine.NewPipeline(store, classificationEngine, taxEngine, engine.PipelineConfig{
		TaxRate: viper.GetFloat64("tax.rate"),
	}, logger)
}
