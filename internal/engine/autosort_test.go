package engine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxquill/taxquill/internal/model"
	"github.com/taxquill/taxquill/internal/storage"
	"github.com/taxquill/taxquill/internal/vendor"
)

func TestApplyRule(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T) (*AutoSortRuleEngine, *storage.MemoryStorage) {
		t.Helper()
		store := storage.NewMemoryStorage()
		raw := []string{"GITHUB.COM", "GITHUB.COM", "DELTA AIR"}
		txns := make([]model.Transaction, len(raw))
		for i, v := range raw {
			txns[i] = model.Transaction{
				ID:               string(rune('a' + i)),
				OwnerID:          "owner-1",
				Date:             time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
				Vendor:           v,
				VendorNormalized: vendor.Normalize(v),
				Amount:           -10,
				Kind:             model.KindExpense,
			}
		}
		require.NoError(t, store.SaveTransactions(ctx, txns))
		return NewAutoSortRuleEngine(store, slog.Default()), store
	}

	t.Run("updates matching pending transactions", func(t *testing.T) {
		engine, store := seed(t)

		count, err := engine.ApplyRule(ctx, ApplyRuleRequest{
			OwnerID:         "owner-1",
			Vendor:          "GITHUB.COM",
			QuickLabel:      "Code hosting",
			BusinessPurpose: "Development infrastructure",
			Category:        "Software & Subscriptions",
			TaxYear:         2025,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		a, err := store.GetTransactionByID(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, model.StatusAutoSorted, a.Status)
		assert.Equal(t, "Software & Subscriptions", a.Category)

		// The other vendor is untouched.
		c, err := store.GetTransactionByID(ctx, "c")
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, c.Status)
	})

	t.Run("persists the rule even with zero matches", func(t *testing.T) {
		engine, store := seed(t)

		count, err := engine.ApplyRule(ctx, ApplyRuleRequest{
			OwnerID:    "owner-1",
			Vendor:     "NETFLIX.COM",
			QuickLabel: "Research subscription",
			TaxYear:    2025,
		})
		require.NoError(t, err)
		assert.Zero(t, count)

		rule, err := store.GetAutoSortRule(ctx, "owner-1", vendor.Normalize("NETFLIX.COM"))
		require.NoError(t, err)
		assert.Equal(t, "Research subscription", rule.QuickLabel)
	})

	t.Run("repeat application picks up only stragglers", func(t *testing.T) {
		engine, store := seed(t)

		req := ApplyRuleRequest{
			OwnerID:    "owner-1",
			Vendor:     "GITHUB.COM",
			QuickLabel: "Code hosting",
			TaxYear:    2025,
		}
		count, err := engine.ApplyRule(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		// A late import of the same vendor.
		require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{{
			ID:               "late",
			OwnerID:          "owner-1",
			Date:             time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
			Vendor:           "GITHUB.COM",
			VendorNormalized: vendor.Normalize("GITHUB.COM"),
			Amount:           -10,
			Kind:             model.KindExpense,
		}}))

		count, err = engine.ApplyRule(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("validates the request", func(t *testing.T) {
		engine, _ := seed(t)

		bad := []ApplyRuleRequest{
			{Vendor: "X", QuickLabel: "x", TaxYear: 2025},
			{OwnerID: "o", QuickLabel: "x", TaxYear: 2025},
			{OwnerID: "o", Vendor: "X", TaxYear: 2025},
			{OwnerID: "o", Vendor: "X", QuickLabel: "x"},
		}
		for _, req := range bad {
			_, err := engine.ApplyRule(ctx, req)
			assert.Error(t, err)
		}

		pct := 150.0
		_, err := engine.ApplyRule(ctx, ApplyRuleRequest{
			OwnerID: "o", Vendor: "X", QuickLabel: "x", TaxYear: 2025, DeductionPct: &pct,
		})
		assert.Error(t, err)
	})
}
