package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/taxquill/taxquill/internal/common"
	"github.com/taxquill/taxquill/internal/model"
)

// UpsertAutoSortRule saves a rule, overwriting any existing rule for the same
// (owner, fingerprint). The created_at of the original rule survives an
// overwrite; updated_at always moves.
func (s *SQLiteStorage) UpsertAutoSortRule(ctx context.Context, rule *model.AutoSortRule) error {
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

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auto_sort_rules (
			owner_id, vendor_fingerprint, quick_label, business_purpose,
			category, deduction_pct, use_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, vendor_fingerprint) DO UPDATE SET
			quick_label = excluded.quick_label,
			business_purpose = excluded.business_purpose,
			category = excluded.category,
			deduction_pct = excluded.deduction_pct,
			updated_at = excluded.updated_at`,
		rule.OwnerID, rule.VendorFingerprint, rule.QuickLabel, rule.BusinessPurpose,
		rule.Category, rule.DeductionPct, rule.UseCount, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert rule: %w", err)
	}

	return nil
}

// GetAutoSortRule fetches the rule for (owner, fingerprint), or ErrNotFound.
func (s *SQLiteStorage) GetAutoSortRule(ctx context.Context, ownerID, fingerprint string) (*model.AutoSortRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}
	if err := validateString(fingerprint, "fingerprint"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT owner_id, vendor_fingerprint, quick_label, business_purpose,
			category, deduction_pct, use_count, created_at, updated_at
		FROM auto_sort_rules
		WHERE owner_id = ? AND vendor_fingerprint = ?`,
		ownerID, fingerprint)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: rule for %s", common.ErrNotFound, fingerprint)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// ListAutoSortRules returns all rules for an owner.
func (s *SQLiteStorage) ListAutoSortRules(ctx context.Context, ownerID string) ([]model.AutoSortRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id, vendor_fingerprint, quick_label, business_purpose,
			category, deduction_pct, use_count, created_at, updated_at
		FROM auto_sort_rules
		WHERE owner_id = ?
		ORDER BY vendor_fingerprint`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.AutoSortRule
	for rows.Next() {
		rule, scanErr := scanRule(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", scanErr)
		}
		out = append(out, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}

	return out, nil
}

// IncrementRuleUse bumps the rule's use count by one.
func (s *SQLiteStorage) IncrementRuleUse(ctx context.Context, ownerID, fingerprint string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return err
	}
	if err := validateString(fingerprint, "fingerprint"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE auto_sort_rules
		SET use_count = use_count + 1, updated_at = ?
		WHERE owner_id = ? AND vendor_fingerprint = ?`,
		time.Now().UTC(), ownerID, fingerprint)
	if err != nil {
		return fmt.Errorf("failed to increment rule use: %w", err)
	}

	count, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count updated rows: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: rule for %s", common.ErrNotFound, fingerprint)
	}
	return nil
}

func scanRule(row scanner) (*model.AutoSortRule, error) {
	var rule model.AutoSortRule
	var pct sql.NullFloat64

	if err := row.Scan(
		&rule.OwnerID, &rule.VendorFingerprint, &rule.QuickLabel, &rule.BusinessPurpose,
		&rule.Category, &pct, &rule.UseCount, &rule.CreatedAt, &rule.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if pct.Valid {
		rule.DeductionPct = &pct.Float64
	}
	return &rule, nil
}
