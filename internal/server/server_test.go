package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxquill/taxquill/internal/cache"
	"github.com/taxquill/taxquill/internal/engine"
	"github.com/taxquill/taxquill/internal/model"
	"github.com/taxquill/taxquill/internal/storage"
	"github.com/taxquill/taxquill/internal/tax"
	"github.com/taxquill/taxquill/internal/vendor"
)

type stubClassifier struct {
	results map[string]model.ClassificationResult
}

func (s *stubClassifier) Classify(_ context.Context, txn model.Transaction) (model.ClassificationResult, error) {
	if result, ok := s.results[txn.VendorNormalized]; ok {
		return result, nil
	}
	return model.ClassificationResult{
		Category:      "Other Expenses",
		ScheduleCLine: "27a",
		Confidence:    0.5,
		Reasoning:     "fallback",
		QuickLabels:   []string{"One", "Two", "Three"},
	}, nil
}

func newTestServer(t *testing.T) (*Server, *storage.MemoryStorage) {
	t.Helper()
	store := storage.NewMemoryStorage()

	taxEngine, err := tax.NewEngine(tax.Config{WageBase: 176100}, slog.Default())
	require.NoError(t, err)

	classifier := &stubClassifier{results: map[string]model.ClassificationResult{
		"STARBUCKS": {
			Category:      "Meals",
			ScheduleCLine: "24b",
			Confidence:    0.9,
			Reasoning:     "Coffee shop",
			QuickLabels:   []string{"Client meeting", "Team coffee", "Working session"},
			IsMeal:        true,
		},
	}}
	classificationEngine := engine.NewClassificationEngine(store, classifier, cache.New(), slog.Default(), engine.Options{})

	pipeline, err := engine.NewPipeline(store, classificationEngine, taxEngine, engine.PipelineConfig{TaxRate: 0.15}, slog.Default())
	require.NoError(t, err)

	return New(pipeline, slog.Default(), Config{Addr: ":0"}), store
}

func seedTxn(t *testing.T, store *storage.MemoryStorage, id, rawVendor string, amount float64) {
	t.Helper()
	require.NoError(t, store.SaveTransactions(context.Background(), []model.Transaction{{
		ID:               id,
		OwnerID:          "owner-1",
		Date:             time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
		Vendor:           rawVendor,
		VendorNormalized: vendor.Normalize(rawVendor),
		Amount:           amount,
		Kind:             model.KindExpense,
	}}))
}

func jsonRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(ownerHeader, "owner-1")
	return req
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestClassifyStreamsNDJSON(t *testing.T) {
	srv, store := newTestServer(t)
	seedTxn(t, store, "t1", "STARBUCKS #4521", -6.75)
	seedTxn(t, store, "t2", "UNKNOWN VENDOR", -20)

	resp, err := srv.App().Test(jsonRequest(http.MethodPost, "/api/classify", map[string]any{
		"transactionIds": []string{"t1", "t2"},
	}), 10000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.GreaterOrEqual(t, len(lines), 3)

	var types []string
	var done map[string]any
	for _, line := range lines {
		var event map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &event), "line %q", line)
		eventType, _ := event["type"].(string)
		types = append(types, eventType)
		if eventType == "done" {
			done = event
		}
	}

	assert.Equal(t, "done", types[len(types)-1])
	require.NotNil(t, done)
	assert.EqualValues(t, 2, done["successful"])
	assert.Contains(t, types, "progress")
	assert.Contains(t, types, "success")
}

func TestClassifyEmptyBody(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.App().Test(jsonRequest(http.MethodPost, "/api/classify", map[string]any{
		"transactionIds": []string{},
	}), 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"type":"done"`)
}

func TestAutoSortEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	seedTxn(t, store, "t1", "GITHUB.COM", -10)
	seedTxn(t, store, "t2", "GITHUB.COM", -10)

	resp, err := srv.App().Test(jsonRequest(http.MethodPost, "/api/autosort", map[string]any{
		"vendorNormalized": "GITHUB.COM",
		"quickLabel":       "Code hosting",
		"businessPurpose":  "Development infrastructure",
		"category":         "Software & Subscriptions",
		"taxYear":          2025,
	}), 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		UpdatedCount int `json:"updatedCount"`
	}
	decodeBody(t, resp, &out)
	assert.Equal(t, 2, out.UpdatedCount)
}

func TestAutoSortRequiresOwnerHeader(t *testing.T) {
	srv, _ := newTestServer(t)

	req := jsonRequest(http.MethodPost, "/api/autosort", map[string]any{"quickLabel": "x"})
	req.Header.Del(ownerHeader)

	resp, err := srv.App().Test(req, 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSimilarEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	seedTxn(t, store, "a", "AMAZON.COM*AB12", -20)
	seedTxn(t, store, "b", "Amazon.com*CD34", -30)

	resp, err := srv.App().Test(jsonRequest(http.MethodGet,
		"/api/similar?vendor=AMAZON.COM*AB12&excludeId=a&taxYear=2025&kind=expense", nil), 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var matches []model.Transaction
	decodeBody(t, resp, &matches)
	require.Len(t, matches, 1)
	assert.Equal(t, "b", matches[0].ID)
}

func TestSummaryEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{{
		ID: "income", OwnerID: "owner-1", Kind: model.KindIncome,
		Date: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		Vendor: "ACME LLC", VendorNormalized: "ACME LLC",
		Amount: 50000, Status: model.StatusCompleted,
	}}))

	resp, err := srv.App().Test(jsonRequest(http.MethodGet, "/api/summary?taxYear=2025", nil), 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var summary tax.Summary
	decodeBody(t, resp, &summary)
	assert.InDelta(t, 50000, summary.GrossIncome, 0.001)
	assert.Positive(t, summary.SelfEmployment.Total)

	t.Run("missing tax year is a bad request", func(t *testing.T) {
		resp, err := srv.App().Test(jsonRequest(http.MethodGet, "/api/summary", nil), 5000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("quarter out of range is a bad request", func(t *testing.T) {
		resp, err := srv.App().Test(jsonRequest(http.MethodGet, "/api/summary?taxYear=2025&quarter=7", nil), 5000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestMarkPersonalEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	seedTxn(t, store, "t1", "STARBUCKS", -6.75)

	resp, err := srv.App().Test(jsonRequest(http.MethodPost, "/api/transactions/t1/personal", nil), 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	got, err := store.GetTransactionByID(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPersonal, got.Status)
	assert.Zero(t, got.DeductionPct)

	t.Run("unknown id is not found", func(t *testing.T) {
		resp, err := srv.App().Test(jsonRequest(http.MethodPost, "/api/transactions/nope/personal", nil), 5000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/healthz", nil), 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
