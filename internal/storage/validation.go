package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/taxquill/taxquill/internal/model"
)

// Validation errors.
var (
	ErrNilContext       = errors.New("context cannot be nil")
	ErrEmptyString      = errors.New("value cannot be empty")
	ErrInvalidStatus    = errors.New("invalid transaction status")
	ErrInvalidKind      = errors.New("invalid transaction kind")
	ErrInvalidDeduction = errors.New("invalid deduction")
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

func validateString(value, name string) error {
	if value == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, name)
	}
	return nil
}

func validateStatus(status model.TransactionStatus) error {
	switch status {
	case model.StatusPending, model.StatusCompleted, model.StatusAutoSorted, model.StatusPersonal:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
}

func validateKind(kind model.TransactionKind) error {
	switch kind {
	case model.KindExpense, model.KindIncome:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
}

func validateTransactions(transactions []model.Transaction) error {
	for i := range transactions {
		txn := &transactions[i]
		if txn.OwnerID == "" {
			return fmt.Errorf("%w: transaction %d owner_id", ErrEmptyString, i)
		}
		if txn.Date.IsZero() {
			return fmt.Errorf("transaction %d: date is required", i)
		}
		if err := validateKind(txn.Kind); err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}
	}
	return nil
}

func validateDeduction(d *model.Deduction) error {
	if d == nil {
		return fmt.Errorf("%w: nil", ErrInvalidDeduction)
	}
	if d.OwnerID == "" || d.Type == "" {
		return fmt.Errorf("%w: owner_id and type are required", ErrInvalidDeduction)
	}
	if d.TaxYear == 0 {
		return fmt.Errorf("%w: tax_year is required", ErrInvalidDeduction)
	}
	return nil
}
