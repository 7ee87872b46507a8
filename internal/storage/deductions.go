package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taxquill/taxquill/internal/model"
)

// SaveDeduction persists a calculator-originated deduction entry.
func (s *SQLiteStorage) SaveDeduction(ctx context.Context, deduction *model.Deduction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateDeduction(deduction); err != nil {
		return err
	}

	if deduction.ID == "" {
		deduction.ID = uuid.NewString()
	}
	if deduction.CreatedAt.IsZero() {
		deduction.CreatedAt = time.Now().UTC()
	}
	if deduction.Metadata == nil {
		deduction.Metadata = map[string]string{}
	}

	metadata, err := json.Marshal(deduction.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO deductions (id, owner_id, type, tax_year, amount, tax_savings, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount = excluded.amount,
			tax_savings = excluded.tax_savings,
			metadata = excluded.metadata`,
		deduction.ID, deduction.OwnerID, deduction.Type, deduction.TaxYear,
		deduction.Amount, deduction.TaxSavings, string(metadata), deduction.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save deduction: %w", err)
	}

	return nil
}

// ListDeductions returns all deduction entries for an owner and tax year.
func (s *SQLiteStorage) ListDeductions(ctx context.Context, ownerID string, taxYear int) ([]model.Deduction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, type, tax_year, amount, tax_savings, metadata, created_at
		FROM deductions
		WHERE owner_id = ? AND tax_year = ?
		ORDER BY created_at, id`,
		ownerID, taxYear)
	if err != nil {
		return nil, fmt.Errorf("failed to query deductions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Deduction
	for rows.Next() {
		var d model.Deduction
		var metadata string
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.Type, &d.TaxYear,
			&d.Amount, &d.TaxSavings, &metadata, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deduction: %w", err)
		}
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &d.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deductions: %w", err)
	}

	return out, nil
}
