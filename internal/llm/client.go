// Package llm provides the external reasoning clients used for transaction
// classification. It supports OpenAI and Anthropic providers behind one
// interface, with retry logic and rate limiting layered on by Classifier.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Client defines the interface for LLM providers.
type Client interface {
	Classify(ctx context.Context, prompt string) (Response, error)
}

// Response is the provider's parsed classification output for one
// transaction. The classifier maps it onto model.ClassificationResult.
type Response struct {
	Category      string
	ScheduleCLine string
	Reasoning     string
	QuickLabels   []string
	Confidence    float64
	IsMeal        bool
	IsTravel      bool
}

// Config holds configuration for the LLM layer.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	MaxRetries  int
	RetryDelay  time.Duration
	RateLimit   int // requests per minute
	Temperature float64
	MaxTokens   int
}

// NewClient creates a provider client from configuration.
func NewClient(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		return newOpenAIClient(cfg)
	case "anthropic":
		return newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
