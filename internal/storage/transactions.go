package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/taxquill/taxquill/internal/catalog"
	"github.com/taxquill/taxquill/internal/common"
	"github.com/taxquill/taxquill/internal/model"
	"github.com/taxquill/taxquill/internal/service"
)

const transactionColumns = `id, owner_id, date, tax_year, vendor, vendor_normalized,
	description, amount, kind, status, category, schedule_c_line, confidence,
	reasoning, quick_labels, quick_label, business_purpose, notes,
	deduction_pct, is_meal, is_travel`

// SaveTransactions inserts imported transactions, assigning IDs and workflow
// defaults. Existing IDs are left untouched (insert-or-ignore), which makes
// repeated imports of the same feed idempotent.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransactions(transactions); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range transactions {
		txn := transactions[i]
		applyImportDefaults(&txn)

		labels, marshalErr := json.Marshal(txn.QuickLabels)
		if marshalErr != nil {
			return fmt.Errorf("failed to marshal quick labels: %w", marshalErr)
		}

		if _, err := stmt.ExecContext(ctx,
			txn.ID, txn.OwnerID, txn.Date, txn.TaxYear, txn.Vendor, txn.VendorNormalized,
			txn.Description, txn.Amount, string(txn.Kind), string(txn.Status),
			txn.Category, txn.ScheduleCLine, txn.Confidence,
			txn.Reasoning, string(labels), txn.QuickLabel, txn.BusinessPurpose, txn.Notes,
			txn.DeductionPct, txn.IsMeal, txn.IsTravel,
		); err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
		}
	}

	return tx.Commit()
}

// applyImportDefaults fills the lifecycle defaults for a freshly imported row.
func applyImportDefaults(txn *model.Transaction) {
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.Status == "" {
		txn.Status = model.StatusPending
	}
	if txn.TaxYear == 0 {
		txn.TaxYear = txn.Date.Year()
	}
	if txn.DeductionPct == 0 && txn.Status != model.StatusPersonal {
		txn.DeductionPct = 100
	}
	if txn.QuickLabels == nil {
		txn.QuickLabels = []string{}
	}
}

// GetTransactionByID fetches one transaction.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)

	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// ListTransactions returns transactions matching the filter, newest first.
func (s *SQLiteStorage) ListTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	var conds []string
	var args []any

	if filter.OwnerID != "" {
		conds = append(conds, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.TaxYear != 0 {
		conds = append(conds, "tax_year = ?")
		args = append(args, filter.TaxYear)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Fingerprint != "" {
		conds = append(conds, "vendor_normalized = ?")
		args = append(args, filter.Fingerprint)
	}
	if filter.ExcludeID != "" {
		conds = append(conds, "id <> ?")
		args = append(args, filter.ExcludeID)
	}
	if filter.Quarter != 0 {
		conds = append(conds, "CAST(strftime('%m', date) AS INTEGER) BETWEEN ? AND ?")
		args = append(args, (filter.Quarter-1)*3+1, filter.Quarter*3)
	}

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY date DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Transaction
	for rows.Next() {
		txn, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", scanErr)
		}
		out = append(out, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return out, nil
}

// UpdateClassification copies a classification result onto the transaction
// row. Workflow status is deliberately untouched; re-running classification
// overwrites previous results.
func (s *SQLiteStorage) UpdateClassification(ctx context.Context, id string, result model.ClassificationResult, deductionPct float64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	labels, err := json.Marshal(result.QuickLabels)
	if err != nil {
		return fmt.Errorf("failed to marshal quick labels: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET category = ?, schedule_c_line = ?, confidence = ?, reasoning = ?,
			quick_labels = ?, is_meal = ?, is_travel = ?, deduction_pct = ?
		WHERE id = ?`,
		result.Category, result.ScheduleCLine, result.Confidence, result.Reasoning,
		string(labels), result.IsMeal, result.IsTravel, deductionPct, id)
	if err != nil {
		return fmt.Errorf("failed to update classification: %w", err)
	}

	return requireRowAffected(res, id)
}

// UpdateStatus transitions a transaction's workflow status. Moving to
// personal forces the deduction percent to zero in the same write so the two
// can never disagree.
func (s *SQLiteStorage) UpdateStatus(ctx context.Context, id string, status model.TransactionStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if err := validateStatus(status); err != nil {
		return err
	}

	var res sql.Result
	var err error
	if status == model.StatusPersonal {
		res, err = s.db.ExecContext(ctx,
			`UPDATE transactions SET status = ?, deduction_pct = 0 WHERE id = ?`,
			string(status), id)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE transactions SET status = ? WHERE id = ?`, string(status), id)
	}
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	return requireRowAffected(res, id)
}

// ApplyRuleToPending bulk-applies an auto-sort rule to every matching pending
// transaction. Each row update is atomic: label, purpose, category, and
// percent land together or not at all.
func (s *SQLiteStorage) ApplyRuleToPending(ctx context.Context, rule *model.AutoSortRule, taxYear int) (int, error) {
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

	line := ""
	if rule.Category != "" {
		line = catalog.LineFor(rule.Category)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = ?,
			quick_label = ?,
			business_purpose = ?,
			category = CASE WHEN ? <> '' THEN ? ELSE category END,
			schedule_c_line = CASE WHEN ? <> '' THEN ? ELSE schedule_c_line END,
			deduction_pct = COALESCE(?, deduction_pct)
		WHERE owner_id = ? AND tax_year = ? AND vendor_normalized = ? AND status = ?`,
		string(model.StatusAutoSorted),
		rule.QuickLabel,
		rule.BusinessPurpose,
		rule.Category, rule.Category,
		rule.Category, line,
		rule.DeductionPct,
		rule.OwnerID, taxYear, rule.VendorFingerprint, string(model.StatusPending))
	if err != nil {
		return 0, fmt.Errorf("failed to apply rule: %w", err)
	}

	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count updated rows: %w", err)
	}

	// Record the bulk application on the stored rule, when one exists.
	if count > 0 {
		if _, err := s.db.ExecContext(ctx, `
			UPDATE auto_sort_rules
			SET use_count = use_count + ?
			WHERE owner_id = ? AND vendor_fingerprint = ?`,
			count, rule.OwnerID, rule.VendorFingerprint); err != nil {
			return 0, fmt.Errorf("failed to record rule use: %w", err)
		}
	}
	return int(count), nil
}

// scanner abstracts sql.Row and sql.Rows for scanTransaction.
type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*model.Transaction, error) {
	var txn model.Transaction
	var kind, status, labelsJSON string

	if err := row.Scan(
		&txn.ID, &txn.OwnerID, &txn.Date, &txn.TaxYear, &txn.Vendor, &txn.VendorNormalized,
		&txn.Description, &txn.Amount, &kind, &status, &txn.Category, &txn.ScheduleCLine,
		&txn.Confidence, &txn.Reasoning, &labelsJSON, &txn.QuickLabel,
		&txn.BusinessPurpose, &txn.Notes, &txn.DeductionPct, &txn.IsMeal, &txn.IsTravel,
	); err != nil {
		return nil, err
	}

	txn.Kind = model.TransactionKind(kind)
	txn.Status = model.TransactionStatus(status)
	if labelsJSON != "" {
		if err := json.Unmarshal([]byte(labelsJSON), &txn.QuickLabels); err != nil {
			return nil, fmt.Errorf("failed to unmarshal quick labels: %w", err)
		}
	}

	return &txn, nil
}

func requireRowAffected(res sql.Result, id string) error {
	count, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count updated rows: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
	}
	return nil
}
