package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/taxquill/taxquill/internal/common"
	"github.com/taxquill/taxquill/internal/model"
	"github.com/taxquill/taxquill/internal/service"
	"github.com/taxquill/taxquill/internal/tax"
)

// Pipeline is the façade the boundary layer talks to. It bundles the
// classification engine, similarity matcher, rule engine, and tax engine
// behind the handful of operations the HTTP and CLI surfaces expose.
type Pipeline struct {
	storage    service.Storage
	classifier *ClassificationEngine
	similarity *SimilarityMatcher
	rules      *AutoSortRuleEngine
	tax        *tax.Engine
	logger     *slog.Logger
	taxRate    float64
}

// PipelineConfig carries the per-deployment figures the pipeline needs.
type PipelineConfig struct {
	// TaxRate is the marginal income tax rate used for estimated
	// payments, e.g. 0.22.
	TaxRate float64
}

// NewPipeline wires the façade. The classification engine is constructed by
// the caller so tests can inject a mock classifier and a pre-warmed cache.
func NewPipeline(storage service.Storage, classifier *ClassificationEngine, taxEngine *tax.Engine, cfg PipelineConfig, logger *slog.Logger) (*Pipeline, error) {
	if cfg.TaxRate < 0 {
		return nil, fmt.Errorf("%w: tax rate must not be negative", common.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		storage:    storage,
		classifier: classifier,
		similarity: NewSimilarityMatcher(storage, logger),
		rules:      NewAutoSortRuleEngine(storage, logger),
		tax:        taxEngine,
		logger:     logger,
		taxRate:    cfg.TaxRate,
	}, nil
}

// Classify starts a classification run over the given transaction IDs.
func (p *Pipeline) Classify(ctx context.Context, ids []string) (<-chan Event, error) {
	return p.classifier.Classify(ctx, ids)
}

// FindSimilar returns the in-scope transactions sharing the query vendor's
// fingerprint.
func (p *Pipeline) FindSimilar(ctx context.Context, query SimilarQuery) ([]model.Transaction, error) {
	return p.similarity.FindSimilar(ctx, query)
}

// ApplyAutoSort saves and bulk-applies one auto-sort decision, returning the
// number of transactions updated.
func (p *Pipeline) ApplyAutoSort(ctx context.Context, req ApplyRuleRequest) (int, error) {
	return p.rules.ApplyRule(ctx, req)
}

// MarkPersonal flags a transaction as a personal expense, which zeroes its
// deduction percent and removes it from every tax total.
func (p *Pipeline) MarkPersonal(ctx context.Context, id string) error {
	return p.storage.UpdateStatus(ctx, id, model.StatusPersonal)
}

// Summary recomputes the tax summary for one owner, year, and optional
// quarter from the current transaction and deduction rows. Nothing is
// cached; edits are always reflected.
func (p *Pipeline) Summary(ctx context.Context, ownerID string, taxYear, quarter int) (*tax.Summary, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", common.ErrInvalidConfig)
	}
	if taxYear == 0 {
		return nil, fmt.Errorf("%w: tax year is required", common.ErrInvalidConfig)
	}

	transactions, err := p.storage.ListTransactions(ctx, service.TransactionFilter{
		OwnerID: ownerID,
		TaxYear: taxYear,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	deductions, err := p.storage.ListDeductions(ctx, ownerID, taxYear)
	if err != nil {
		return nil, fmt.Errorf("failed to load deductions: %w", err)
	}

	return p.tax.Summarize(transactions, deductions, p.taxRate, quarter)
}
