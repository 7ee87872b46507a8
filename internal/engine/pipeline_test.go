package engine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxquill/taxquill/internal/cache"
	"github.com/taxquill/taxquill/internal/model"
	"github.com/taxquill/taxquill/internal/storage"
	"github.com/taxquill/taxquill/internal/tax"
)

func newTestPipeline(t *testing.T, store *storage.MemoryStorage) *Pipeline {
	t.Helper()
	taxEngine, err := tax.NewEngine(tax.Config{WageBase: 176100}, slog.Default())
	require.NoError(t, err)

	classifier := NewClassificationEngine(store, &mockClassifier{}, cache.New(), slog.Default(), Options{})
	pipeline, err := NewPipeline(store, classifier, taxEngine, PipelineConfig{TaxRate: 0.15}, slog.Default())
	require.NoError(t, err)
	return pipeline
}

func TestPipelineSummaryReflectsEdits(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	pipeline := newTestPipeline(t, store)

	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{
		{
			ID: "income", OwnerID: "owner-1", Kind: model.KindIncome,
			Date: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
			Vendor: "ACME LLC", VendorNormalized: "ACME LLC",
			Amount: 50000, Status: model.StatusCompleted,
		},
		{
			ID: "expense", OwnerID: "owner-1", Kind: model.KindExpense,
			Date: time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC),
			Vendor: "CONTRACTOR", VendorNormalized: "CONTRACTOR",
			Amount: -20000, Status: model.StatusCompleted,
			Category: "Contract Labor", ScheduleCLine: "11",
		},
	}))

	summary, err := pipeline.Summary(ctx, "owner-1", 2025, 0)
	require.NoError(t, err)
	assert.InDelta(t, 30000, summary.NetProfit, 0.001)
	assert.InDelta(t, 4238.87, summary.SelfEmployment.Total, 0.001)

	// Marking the expense personal removes it from every total on the
	// very next read; summaries are never cached.
	require.NoError(t, pipeline.MarkPersonal(ctx, "expense"))

	summary, err = pipeline.Summary(ctx, "owner-1", 2025, 0)
	require.NoError(t, err)
	assert.InDelta(t, 50000, summary.NetProfit, 0.001)
	assert.Zero(t, summary.CategoryBreakdown["Contract Labor"])
}

func TestPipelineSummaryValidation(t *testing.T) {
	ctx := context.Background()
	pipeline := newTestPipeline(t, storage.NewMemoryStorage())

	_, err := pipeline.Summary(ctx, "", 2025, 0)
	assert.Error(t, err)
	_, err = pipeline.Summary(ctx, "owner-1", 0, 0)
	assert.Error(t, err)
}
