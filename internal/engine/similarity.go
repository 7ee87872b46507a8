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

// SimilarityMatcher finds not-yet-finalized transactions that share a vendor
// fingerprint, so one user decision can fan out over the whole group.
type SimilarityMatcher struct {
	storage service.Storage
	logger  *slog.Logger
}

// NewSimilarityMatcher creates a matcher over the given store.
func NewSimilarityMatcher(storage service.Storage, logger *slog.Logger) *SimilarityMatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SimilarityMatcher{storage: storage, logger: logger}
}

// SimilarQuery scopes a similarity search. Status defaults to pending;
// matches are always limited to one owner, tax year, and kind.
type SimilarQuery struct {
	OwnerID   string
	Vendor    string
	ExcludeID string
	Status    model.TransactionStatus
	Kind      model.TransactionKind
	TaxYear   int
}

// FindSimilar normalizes the query vendor and returns every transaction in
// scope with the same fingerprint. The raw vendor text may differ between
// matches; only the fingerprint has to agree.
func (m *SimilarityMatcher) FindSimilar(ctx context.Context, query SimilarQuery) ([]model.Transaction, error) {
	if query.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", common.ErrInvalidConfig)
	}
	if query.Vendor == "" {
		return nil, fmt.Errorf("%w: vendor is required", common.ErrInvalidConfig)
	}

	fingerprint := vendor.Normalize(query.Vendor)
	status := query.Status
	if status == "" {
		status = model.StatusPending
	}

	matches, err := m.storage.ListTransactions(ctx, service.TransactionFilter{
		OwnerID:     query.OwnerID,
		Fingerprint: fingerprint,
		ExcludeID:   query.ExcludeID,
		Status:      status,
		Kind:        query.Kind,
		TaxYear:     query.TaxYear,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find similar transactions: %w", err)
	}

	m.logger.Debug("similarity search",
		"vendor", query.Vendor,
		"fingerprint", fingerprint,
		"matches", len(matches))

	return matches, nil
}
