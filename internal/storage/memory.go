package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taxquill/taxquill/internal/catalog"
	"github.com/taxquill/taxquill/internal/common"
	"github.com/taxquill/taxquill/internal/model"
	"github.com/taxquill/taxquill/internal/service"
)

// MemoryStorage is the in-memory Storage implementation used by tests and
// throwaway environments. It mirrors SQLiteStorage semantics exactly,
// including the personal-forces-zero-percent rule and insert-or-ignore saves.
type MemoryStorage struct {
	transactions map[string]model.Transaction
	rules        map[string]model.AutoSortRule // key: owner|fingerprint
	deductions   map[string]model.Deduction
	mu           sync.RWMutex
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		transactions: make(map[string]model.Transaction),
		rules:        make(map[string]model.AutoSortRule),
		deductions:   make(map[string]model.Deduction),
	}
}

func ruleKey(ownerID, fingerprint string) string {
	return ownerID + "|" + fingerprint
}

// SaveTransactions inserts transactions, ignoring IDs that already exist.
func (s *MemoryStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransactions(transactions); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range transactions {
		txn := transactions[i]
		applyImportDefaults(&txn)
		if _, exists := s.transactions[txn.ID]; exists {
			continue
		}
		s.transactions[txn.ID] = txn
	}
	return nil
}

// GetTransactionByID fetches one transaction.
func (s *MemoryStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	txn, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
	}
	return &txn, nil
}

// ListTransactions returns matching transactions, newest first.
func (s *MemoryStorage) ListTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Transaction
	for _, txn := range s.transactions {
		if !matchesFilter(&txn, filter) {
			continue
		}
		out = append(out, txn)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matchesFilter(txn *model.Transaction, filter service.TransactionFilter) bool {
	if filter.OwnerID != "" && txn.OwnerID != filter.OwnerID {
		return false
	}
	if filter.TaxYear != 0 && txn.TaxYear != filter.TaxYear {
		return false
	}
	if filter.Status != "" && txn.Status != filter.Status {
		return false
	}
	if filter.Kind != "" && txn.Kind != filter.Kind {
		return false
	}
	if filter.Fingerprint != "" && txn.VendorNormalized != filter.Fingerprint {
		return false
	}
	if filter.ExcludeID != "" && txn.ID == filter.ExcludeID {
		return false
	}
	if filter.Quarter != 0 && txn.Quarter() != filter.Quarter {
		return false
	}
	return true
}

// UpdateClassification copies a classification result onto the transaction.
func (s *MemoryStorage) UpdateClassification(ctx context.Context, id string, result model.ClassificationResult, deductionPct float64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.transactions[id]
	if !ok {
		return fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
	}

	txn.Category = result.Category
	txn.ScheduleCLine = result.ScheduleCLine
	txn.Confidence = result.Confidence
	txn.Reasoning = result.Reasoning
	txn.QuickLabels = append([]string(nil), result.QuickLabels...)
	txn.IsMeal = result.IsMeal
	txn.IsTravel = result.IsTravel
	txn.DeductionPct = deductionPct

	s.transactions[id] = txn
	return nil
}

// UpdateStatus transitions workflow status, zeroing the deduction percent on
// a move to personal.
func (s *MemoryStorage) UpdateStatus(ctx context.Context, id string, status model.TransactionStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if err := validateStatus(status); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.transactions[id]
	if !ok {
		return fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
	}

	txn.Status = status
	if status == model.StatusPersonal {
		txn.DeductionPct = 0
	}

	s.transactions[id] = txn
	return nil
}

// ApplyRuleToPending bulk-applies a rule to matching pending transactions.
func (s *MemoryStorage) ApplyRuleToPending(ctx context.Context, rule *model.AutoSortRule, taxYear int) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if rule == nil {
		return 0, fmt.Errorf("%w: rule", ErrEmptyString)
	}
	if err := validateString(rule.OwnerID, "owner_id"); err != nil {
		return 0, err
	}
	if err := validateString(rule.VendorFingerprint, "vendor_fingerprint"); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, txn := range s.transactions {
		if txn.OwnerID != rule.OwnerID ||
			txn.TaxYear != taxYear ||
			txn.VendorNormalized != rule.VendorFingerprint ||
			txn.Status != model.StatusPending {
			continue
		}

		txn.Status = model.StatusAutoSorted
		txn.QuickLabel = rule.QuickLabel
		txn.BusinessPurpose = rule.BusinessPurpose
		if rule.Category != "" {
			txn.Category = rule.Category
			txn.ScheduleCLine = catalog.LineFor(rule.Category)
		}
		if rule.DeductionPct != nil {
			txn.DeductionPct = *rule.DeductionPct
		}

		s.transactions[id] = txn
		count++
	}

	// Record the bulk application on the stored rule, when one exists.
	key := ruleKey(rule.OwnerID, rule.VendorFingerprint)
	if stored, ok := s.rules[key]; ok && count > 0 {
		stored.UseCount += count
		s.rules[key] = stored
	}
	return count, nil
}

// UpsertAutoSortRule saves a rule, overwriting any previous one for the same
// (owner, fingerprint).
func (s *MemoryStorage) UpsertAutoSortRule(ctx context.Context, rule *model.AutoSortRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrEmptyString)
	}
	if err := validateString(rule.OwnerID, "owner_id"); err != nil {
		return err
	}
	if err := validateString(rule.VendorFingerprint, "vendor_fingerprint"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := ruleKey(rule.OwnerID, rule.VendorFingerprint)
	if existing, ok := s.rules[key]; ok {
		rule.CreatedAt = existing.CreatedAt
		rule.UseCount = existing.UseCount
	} else if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	s.rules[key] = *rule
	return nil
}

// GetAutoSortRule fetches the rule for (owner, fingerprint), or ErrNotFound.
func (s *MemoryStorage) GetAutoSortRule(ctx context.Context, ownerID, fingerprint string) (*model.AutoSortRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}
	if err := validateString(fingerprint, "fingerprint"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[ruleKey(ownerID, fingerprint)]
	if !ok {
		return nil, fmt.Errorf("%w: rule for %s", common.ErrNotFound, fingerprint)
	}
	return &rule, nil
}

// IncrementRuleUse bumps the rule's use count by one.
func (s *MemoryStorage) IncrementRuleUse(ctx context.Context, ownerID, fingerprint string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return err
	}
	if err := validateString(fingerprint, "fingerprint"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := ruleKey(ownerID, fingerprint)
	rule, ok := s.rules[key]
	if !ok {
		return fmt.Errorf("%w: rule for %s", common.ErrNotFound, fingerprint)
	}
	rule.UseCount++
	rule.UpdatedAt = time.Now().UTC()
	s.rules[key] = rule
	return nil
}

// ListAutoSortRules returns all rules for an owner.
func (s *MemoryStorage) ListAutoSortRules(ctx context.Context, ownerID string) ([]model.AutoSortRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.AutoSortRule
	for _, rule := range s.rules {
		if rule.OwnerID == ownerID {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].VendorFingerprint < out[j].VendorFingerprint
	})
	return out, nil
}

// SaveDeduction persists a deduction entry.
func (s *MemoryStorage) SaveDeduction(ctx context.Context, deduction *model.Deduction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateDeduction(deduction); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if deduction.ID == "" {
		deduction.ID = uuid.NewString()
	}
	if deduction.CreatedAt.IsZero() {
		deduction.CreatedAt = time.Now().UTC()
	}
	if deduction.Metadata == nil {
		deduction.Metadata = map[string]string{}
	}

	s.deductions[deduction.ID] = *deduction
	return nil
}

// ListDeductions returns all deduction entries for an owner and tax year.
func (s *MemoryStorage) ListDeductions(ctx context.Context, ownerID string, taxYear int) ([]model.Deduction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Deduction
	for _, d := range s.deductions {
		if d.OwnerID == ownerID && d.TaxYear == taxYear {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Migrate is a no-op for the in-memory store.
func (s *MemoryStorage) Migrate(ctx context.Context) error {
	return validateContext(ctx)
}

// Close is a no-op for the in-memory store.
func (s *MemoryStorage) Close() error {
	return nil
}
