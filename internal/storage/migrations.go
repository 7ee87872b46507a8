package storage

import (
	"context"
	"fmt"
	"log/slog"
)

// migration is one schema step. Migrations run in order inside a transaction
// each; PRAGMA user_version tracks the applied count.
type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "create transactions table",
		sql: `
			CREATE TABLE IF NOT EXISTS transactions (
				id TEXT PRIMARY KEY,
				owner_id TEXT NOT NULL,
				date TIMESTAMP NOT NULL,
				tax_year INTEGER NOT NULL,
				vendor TEXT NOT NULL DEFAULT '',
				vendor_normalized TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				amount REAL NOT NULL,
				kind TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				category TEXT NOT NULL DEFAULT '',
				schedule_c_line TEXT NOT NULL DEFAULT '',
				confidence REAL NOT NULL DEFAULT 0,
				reasoning TEXT NOT NULL DEFAULT '',
				quick_labels TEXT NOT NULL DEFAULT '[]',
				quick_label TEXT NOT NULL DEFAULT '',
				business_purpose TEXT NOT NULL DEFAULT '',
				notes TEXT NOT NULL DEFAULT '',
				deduction_pct REAL NOT NULL DEFAULT 100,
				is_meal INTEGER NOT NULL DEFAULT 0,
				is_travel INTEGER NOT NULL DEFAULT 0
			);
			CREATE INDEX IF NOT EXISTS idx_transactions_owner_year
				ON transactions(owner_id, tax_year, status);
			CREATE INDEX IF NOT EXISTS idx_transactions_fingerprint
				ON transactions(owner_id, vendor_normalized);
		`,
	},
	{
		name: "create auto_sort_rules table",
		sql: `
			CREATE TABLE IF NOT EXISTS auto_sort_rules (
				owner_id TEXT NOT NULL,
				vendor_fingerprint TEXT NOT NULL,
				quick_label TEXT NOT NULL DEFAULT '',
				business_purpose TEXT NOT NULL DEFAULT '',
				category TEXT NOT NULL DEFAULT '',
				deduction_pct REAL,
				use_count INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL,
				PRIMARY KEY (owner_id, vendor_fingerprint)
			);
		`,
	},
	{
		name: "create deductions table",
		sql: `
			CREATE TABLE IF NOT EXISTS deductions (
				id TEXT PRIMARY KEY,
				owner_id TEXT NOT NULL,
				type TEXT NOT NULL,
				tax_year INTEGER NOT NULL,
				amount REAL NOT NULL,
				tax_savings REAL NOT NULL DEFAULT 0,
				metadata TEXT NOT NULL DEFAULT '{}',
				created_at TIMESTAMP NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_deductions_owner_year
				ON deductions(owner_id, tax_year);
		`,
	},
}

// Migrate applies any pending schema migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		m := migrations[i]

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %q failed: %w", m.name, err)
		}

		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to bump schema version: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %q: %w", m.name, err)
		}

		slog.Info("Applied migration", "name", m.name, "version", i+1)
	}

	return nil
}
