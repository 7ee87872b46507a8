package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/taxquill/taxquill/internal/common"
	"github.com/taxquill/taxquill/internal/model"
	"github.com/taxquill/taxquill/internal/service"
	"github.com/taxquill/taxquill/internal/vendor"
)

// AutoSortRuleEngine turns a single user decision into a reusable rule and
// fans it out over the owner's matching pending transactions.
type AutoSortRuleEngine struct {
	storage service.Storage
	logger  *slog.Logger
}

// NewAutoSortRuleEngine creates a rule engine over the given store.
func NewAutoSortRuleEngine(storage service.Storage, logger *slog.Logger) *AutoSortRuleEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &AutoSortRuleEngine{storage: storage, logger: logger}
}

// ApplyRuleRequest is one "apply to all similar" decision. Category and
// DeductionPct are optional; when absent the bulk update leaves the matching
// transactions' existing values alone.
type ApplyRuleRequest struct {
	DeductionPct    *float64
	OwnerID         string
	Vendor          string
	QuickLabel      string
	BusinessPurpose string
	Category        string
	TaxYear         int
}

// ApplyRule upserts the rule for (owner, fingerprint) and bulk-applies it to
// the owner's pending transactions in the tax year. The returned count is
// the ground truth of what the bulk update touched; a count of zero still
// leaves the rule persisted for future imports. Calling again with the same
// decision is the reconciliation path: already-sorted rows no longer match,
// so only stragglers are picked up.
func (e *AutoSortRuleEngine) ApplyRule(ctx context.Context, req ApplyRuleRequest) (int, error) {
	if req.OwnerID == "" {
		return 0, fmt.Errorf("%w: owner id is required", common.ErrInvalidConfig)
	}
	if req.Vendor == "" {
		return 0, fmt.Errorf("%w: vendor is required", common.ErrInvalidConfig)
	}
	if req.QuickLabel == "" {
		return 0, fmt.Errorf("%w: quick label is required", common.ErrInvalidConfig)
	}
	if req.TaxYear == 0 {
		return 0, fmt.Errorf("%w: tax year is required", common.ErrInvalidConfig)
	}
	if req.DeductionPct != nil && (*req.DeductionPct < 0 || *req.DeductionPct > 100) {
		return 0, fmt.Errorf("%w: deduction percent must be 0-100", common.ErrInvalidConfig)
	}

	rule := &model.AutoSortRule{
		OwnerID:           req.OwnerID,
		VendorFingerprint: vendor.Normalize(req.Vendor),
		QuickLabel:        req.QuickLabel,
		BusinessPurpose:   req.BusinessPurpose,
		Category:          req.Category,
		DeductionPct:      req.DeductionPct,
	}

	if err := e.storage.UpsertAutoSortRule(ctx, rule); err != nil {
		return 0, fmt.Errorf("failed to save auto-sort rule: %w", err)
	}

	count, err := e.storage.ApplyRuleToPending(ctx, rule, req.TaxYear)
	if err != nil {
		return 0, fmt.Errorf("failed to apply auto-sort rule: %w", err)
	}

	e.logger.Info("auto-sort rule applied",
		"owner_id", rule.OwnerID,
		"fingerprint", rule.VendorFingerprint,
		"tax_year", req.TaxYear,
		"updated", count)

	return count, nil
}
