package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taxquill/taxquill/internal/common"
	"github.com/taxquill/taxquill/internal/model"
	"github.com/taxquill/taxquill/internal/service"
)

// Classifier wraps a provider client with retry logic and rate limiting.
// It implements the engine's Classifier interface.
type Classifier struct {
	client      Client
	logger      *slog.Logger
	rateLimiter *rateLimiter
	retryOpts   service.RetryOptions
}

// NewClassifier creates a new LLM-based classifier from configuration.
func NewClassifier(cfg Config, logger *slog.Logger) (*Classifier, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return NewClassifierWithClient(client, cfg, logger), nil
}

// NewClassifierWithClient wires a classifier around an existing client.
// Tests use this with a mock client.
func NewClassifierWithClient(client Client, cfg Config, logger *slog.Logger) *Classifier {
	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	return &Classifier{
		client:      client,
		logger:      logger,
		retryOpts:   retryOpts,
		rateLimiter: newRateLimiter(cfg.RateLimit),
	}
}

// Classify produces a structured classification for one transaction. A
// malformed or failed provider response is retried with backoff; if all
// attempts fail the error is returned for the engine to record as a
// per-transaction failure.
func (c *Classifier) Classify(ctx context.Context, txn model.Transaction) (model.ClassificationResult, error) {
	if err := c.rateLimiter.wait(ctx); err != nil {
		return model.ClassificationResult{}, fmt.Errorf("rate limit error: %w", err)
	}

	prompt := buildPrompt(txn)

	var response Response
	err := common.WithRetry(ctx, func() error {
		resp, callErr := c.client.Classify(ctx, prompt)
		if callErr != nil {
			c.logger.Warn("classification attempt failed",
				"transaction_id", txn.ID,
				"vendor", txn.Vendor,
				"error", callErr)
			return &common.RetryableError{Err: callErr, Retryable: true}
		}
		response = resp
		return nil
	}, c.retryOpts)
	if err != nil {
		return model.ClassificationResult{}, fmt.Errorf("%w: %v", common.ErrClassificationFailed, err)
	}

	c.logger.Debug("transaction classified",
		"transaction_id", txn.ID,
		"vendor", txn.Vendor,
		"category", response.Category,
		"confidence", response.Confidence)

	return model.ClassificationResult{
		Category:      response.Category,
		ScheduleCLine: response.ScheduleCLine,
		Reasoning:     response.Reasoning,
		QuickLabels:   response.QuickLabels,
		Confidence:    response.Confidence,
		IsMeal:        response.IsMeal,
		IsTravel:      response.IsTravel,
	}, nil
}

// Close stops background goroutines.
func (c *Classifier) Close() error {
	if c.rateLimiter != nil {
		c.rateLimiter.Close()
	}
	return nil
}
