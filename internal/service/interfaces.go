// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/taxquill/taxquill/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
// Zero values mean "no constraint".
type TransactionFilter struct {
	OwnerID     string
	Fingerprint string
	ExcludeID   string
	Status      model.TransactionStatus
	Kind        model.TransactionKind
	TaxYear     int
	Quarter     int // 1-4, 0 = whole year
	Limit       int
}

// Storage defines the contract for our persistence layer. It is implemented
// once against SQLite and once in memory for tests.
type Storage interface {
	// Transaction operations.
	SaveTransactions(ctx context.Context, transactions []model.Transaction) error
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	// UpdateClassification copies an engine result onto the transaction row.
	// It never touches workflow status; re-classification simply overwrites.
	UpdateClassification(ctx context.Context, id string, result model.ClassificationResult, deductionPct float64) error
	// UpdateStatus transitions workflow status. A transition to personal
	// forces the deduction percent to zero in the same write.
	UpdateStatus(ctx context.Context, id string, status model.TransactionStatus) error
	// ApplyRuleToPending bulk-updates every pending transaction of the rule's
	// owner in the given tax year whose fingerprint matches, setting status
	// to auto_sorted and copying the rule's fields. Returns the count updated.
	ApplyRuleToPending(ctx context.Context, rule *model.AutoSortRule, taxYear int) (int, error)

	// Auto-sort rule operations. One logical rule per (owner, fingerprint).
	UpsertAutoSortRule(ctx context.Context, rule *model.AutoSortRule) error
	GetAutoSortRule(ctx context.Context, ownerID, fingerprint string) (*model.AutoSortRule, error)
	ListAutoSortRules(ctx context.Context, ownerID string) ([]model.AutoSortRule, error)
	// IncrementRuleUse bumps the rule's use count by one, recording a single
	// transaction resolved from it. ApplyRuleToPending bumps by its updated
	// count on its own.
	IncrementRuleUse(ctx context.Context, ownerID, fingerprint string) error

	// Deduction operations.
	SaveDeduction(ctx context.Context, deduction *model.Deduction) error
	ListDeductions(ctx context.Context, ownerID string, taxYear int) ([]model.Deduction, error)

	// Database management.
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// CompletionStats shows the results of a classification run.
type CompletionStats struct {
	Duration   time.Duration
	Total      int
	Successful int
	CacheHits  int
	Failed     int
}
