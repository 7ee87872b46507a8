package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taxquill/taxquill/internal/llm"
	"github.com/taxquill/taxquill/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Serve the classification, auto-sort, similarity, and summary endpoints
over HTTP. Classification results stream back as newline-delimited JSON.

Examples:
  taxquill serve                # Listen on the configured address
  taxquill serve --addr :9090   # Override the listen address`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", ":8080", "listen address")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	classifier, err := llm.NewClassifier(llmConfig(), slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create classifier: %w", err)
	}
	defer func() { _ = classifier.Close() }()

	pipeline, err := buildPipeline(store, classifier, slog.Default())
	if err != nil {
		return err
	}

	srv := server.New(pipeline, slog.Default(), server.Config{
		Addr: viper.GetString("server.addr"),
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	slog.Info("Server stopped")
	return nil
}
