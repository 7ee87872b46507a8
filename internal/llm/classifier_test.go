package llm

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxquill/taxquill/internal/model"
)

// mockClient scripts provider responses for classifier tests.
type mockClient struct {
	responses []Response
	errs      []error
	calls     int
}

func (m *mockClient) Classify(_ context.Context, _ string) (Response, error) {
	idx := m.calls
	m.calls++
	if idx < len(m.errs) && m.errs[idx] != nil {
		return Response{}, m.errs[idx]
	}
	if idx < len(m.responses) {
		return m.responses[idx], nil
	}
	if len(m.responses) > 0 {
		return m.responses[len(m.responses)-1], nil
	}
	return Response{}, errors.New("no scripted response")
}

func testTxn() model.Transaction {
	return model.Transaction{
		ID:               "txn-1",
		Vendor:           "STARBUCKS #4521",
		VendorNormalized: "STARBUCKS",
		Amount:           -6.75,
		Date:             time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC),
		Kind:             model.KindExpense,
	}
}

func fastConfig() Config {
	return Config{
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		RateLimit:  600,
	}
}

func TestClassifySuccess(t *testing.T) {
	client := &mockClient{responses: []Response{{
		Category:      "Meals",
		ScheduleCLine: "24b",
		Reasoning:     "Coffee shop",
		QuickLabels:   []string{"Client meeting", "Team coffee", "Working session"},
		Confidence:    0.92,
		IsMeal:        true,
	}}}

	c := NewClassifierWithClient(client, fastConfig(), slog.Default())
	defer func() { _ = c.Close() }()

	result, err := c.Classify(context.Background(), testTxn())
	require.NoError(t, err)
	assert.Equal(t, "Meals", result.Category)
	assert.Equal(t, "24b", result.ScheduleCLine)
	assert.True(t, result.IsMeal)
	assert.Len(t, result.QuickLabels, 3)
	assert.Equal(t, 1, client.calls)
}

func TestClassifyRetriesTransientFailures(t *testing.T) {
	client := &mockClient{
		errs: []error{errors.New("timeout"), errors.New("malformed json"), nil},
		responses: []Response{{}, {}, {
			Category:      "Supplies",
			ScheduleCLine: "22",
			QuickLabels:   []string{"a", "b", "c"},
			Confidence:    0.8,
		}},
	}

	c := NewClassifierWithClient(client, fastConfig(), slog.Default())
	defer func() { _ = c.Close() }()

	result, err := c.Classify(context.Background(), testTxn())
	require.NoError(t, err)
	assert.Equal(t, "Supplies", result.Category)
	assert.Equal(t, 3, client.calls)
}

func TestClassifyExhaustsRetries(t *testing.T) {
	boom := errors.New("service down")
	client := &mockClient{errs: []error{boom, boom, boom}}

	c := NewClassifierWithClient(client, fastConfig(), slog.Default())
	defer func() { _ = c.Close() }()

	_, err := c.Classify(context.Background(), testTxn())
	require.Error(t, err)
	assert.Equal(t, 3, client.calls)
}

func TestNewClientRejectsUnknownProvider(t *testing.T) {
	_, err := NewClient(Config{Provider: "cohere", APIKey: "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported LLM provider")
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{Provider: "openai"})
	require.Error(t, err)

	_, err = NewClient(Config{Provider: "anthropic"})
	require.Error(t, err)
}
