// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// TransactionKind distinguishes money-in from money-out.
type TransactionKind string

// Transaction kind constants.
const (
	KindExpense TransactionKind = "expense"
	KindIncome  TransactionKind = "income"
)

// TransactionStatus tracks where a transaction sits in the review workflow.
type TransactionStatus string

// Transaction status constants.
const (
	// StatusPending means the transaction was imported but not yet finalized.
	StatusPending TransactionStatus = "pending"
	// StatusCompleted means the user confirmed the classification directly.
	StatusCompleted TransactionStatus = "completed"
	// StatusAutoSorted means the classification was propagated from an AutoSortRule.
	StatusAutoSorted TransactionStatus = "auto_sorted"
	// StatusPersonal means the transaction is excluded from every deduction total.
	StatusPersonal TransactionStatus = "personal"
)

// Transaction represents a single financial event from a bank feed. JSON
// tags match the shapes the HTTP API serves.
type Transaction struct {
	Date             time.Time         `json:"date"`
	ID               string            `json:"id"`
	OwnerID          string            `json:"ownerId"`
	Vendor           string            `json:"vendor"`           // Raw merchant text as imported
	VendorNormalized string            `json:"vendorNormalized"` // Fingerprint, see internal/vendor
	Description      string            `json:"description,omitempty"`
	Kind             TransactionKind   `json:"kind"`
	Status           TransactionStatus `json:"status"`

	// Classification fields, zero-valued until the engine has run.
	Category      string   `json:"category,omitempty"`
	ScheduleCLine string   `json:"scheduleCLine,omitempty"`
	Reasoning     string   `json:"reasoning,omitempty"`
	QuickLabels   []string `json:"quickLabels,omitempty"`

	// Workflow fields set by user action.
	QuickLabel      string `json:"quickLabel,omitempty"`
	BusinessPurpose string `json:"businessPurpose,omitempty"`
	Notes           string `json:"notes,omitempty"`

	Amount       float64 `json:"amount"`       // Signed; expenses are negative in most feeds
	Confidence   float64 `json:"confidence"`   // 0-1
	DeductionPct float64 `json:"deductionPct"` // 0-100, default 100
	TaxYear      int     `json:"taxYear"`
	IsMeal       bool    `json:"isMeal"`
	IsTravel     bool    `json:"isTravel"`
}

// CacheKey produces the content-addressed key used by the classification
// cache. It is deliberately independent of the transaction ID so that
// identical-looking transactions across owners and years share a hit.
func (t *Transaction) CacheKey() string {
	data := fmt.Sprintf("%s:%.2f:%s", t.VendorNormalized, t.Amount, t.Kind)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// Quarter returns the calendar quarter (1-4) of the transaction date.
func (t *Transaction) Quarter() int {
	return (int(t.Date.Month())-1)/3 + 1
}

// IsFinalized reports whether the transaction counts toward tax totals.
func (t *Transaction) IsFinalized() bool {
	return t.Status == StatusCompleted || t.Status == StatusAutoSorted
}

// IsClassified reports whether the classification engine has populated this
// transaction, regardless of workflow status.
func (t *Transaction) IsClassified() bool {
	return t.Category != ""
}
