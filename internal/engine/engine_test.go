package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxquill/taxquill/internal/cache"
	"github.com/taxquill/taxquill/internal/model"
	"github.com/taxquill/taxquill/internal/storage"
)

// mockClassifier returns scripted results keyed by normalized vendor and
// counts calls, so tests can assert the cache and rules short-circuit the
// model.
type mockClassifier struct {
	results map[string]model.ClassificationResult
	errs    map[string]error
	mu      sync.Mutex
	calls   int
}

func (m *mockClassifier) Classify(_ context.Context, txn model.Transaction) (model.ClassificationResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if err, ok := m.errs[txn.VendorNormalized]; ok {
		return model.ClassificationResult{}, err
	}
	if result, ok := m.results[txn.VendorNormalized]; ok {
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

func (m *mockClassifier) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func mealResult() model.ClassificationResult {
	return model.ClassificationResult{
		Category:      "Meals",
		ScheduleCLine: "24b",
		Confidence:    0.9,
		Reasoning:     "Coffee shop",
		QuickLabels:   []string{"Client meeting", "Team coffee", "Working session"},
		IsMeal:        true,
	}
}

func testTxn(id, vendor string, amount float64) model.Transaction {
	return model.Transaction{
		ID:               id,
		OwnerID:          "owner-1",
		Date:             time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
		Vendor:           vendor,
		VendorNormalized: vendor,
		Amount:           amount,
		Kind:             model.KindExpense,
	}
}

func newTestEngine(t *testing.T, classifier Classifier, txns ...model.Transaction) (*ClassificationEngine, *storage.MemoryStorage, *cache.ClassificationCache) {
	t.Helper()
	store := storage.NewMemoryStorage()
	if len(txns) > 0 {
		require.NoError(t, store.SaveTransactions(context.Background(), txns))
	}
	c := cache.New()
	engine := NewClassificationEngine(store, classifier, c, slog.Default(), Options{BatchSize: 2})
	return engine, store, c
}

func drain(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, event)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
}

func lastDone(t *testing.T, events []Event) DoneEvent {
	t.Helper()
	require.NotEmpty(t, events)
	done, ok := events[len(events)-1].(DoneEvent)
	require.True(t, ok, "last event must be done, got %T", events[len(events)-1])
	for _, event := range events[:len(events)-1] {
		_, isDone := event.(DoneEvent)
		require.False(t, isDone, "done must be emitted exactly once")
	}
	return done
}

func successEvents(events []Event) []SuccessEvent {
	var out []SuccessEvent
	for _, event := range events {
		if s, ok := event.(SuccessEvent); ok {
			out = append(out, s)
		}
	}
	return out
}

func errorEvents(events []Event) []ErrorEvent {
	var out []ErrorEvent
	for _, event := range events {
		if e, ok := event.(ErrorEvent); ok {
			out = append(out, e)
		}
	}
	return out
}

func TestClassifyEmptyInput(t *testing.T) {
	engine, _, _ := newTestEngine(t, &mockClassifier{})

	events, err := engine.Classify(context.Background(), nil)
	require.NoError(t, err)

	all := drain(t, events)
	require.Len(t, all, 1)
	done := lastDone(t, all)
	assert.Zero(t, done.Successful)
	assert.Zero(t, done.CachedCount)
}

func TestClassifyRejectsEmptyID(t *testing.T) {
	engine, _, _ := newTestEngine(t, &mockClassifier{})

	_, err := engine.Classify(context.Background(), []string{"a", ""})
	require.Error(t, err)
}

func TestClassifyPersistsAndEmits(t *testing.T) {
	ctx := context.Background()
	classifier := &mockClassifier{
		results: map[string]model.ClassificationResult{"STARBUCKS": mealResult()},
	}
	engine, store, _ := newTestEngine(t, classifier, testTxn("t1", "STARBUCKS", -6.75))

	events, err := engine.Classify(ctx, []string{"t1"})
	require.NoError(t, err)
	all := drain(t, events)

	done := lastDone(t, all)
	assert.Equal(t, 1, done.Successful)
	assert.Zero(t, done.CachedCount)

	successes := successEvents(all)
	require.Len(t, successes, 1)
	assert.Equal(t, "t1", successes[0].ID)
	assert.Equal(t, "Meals", successes[0].Category)
	assert.Equal(t, "24b", successes[0].Line)
	assert.True(t, successes[0].IsMeal)
	// Meals not tied to travel default to the 50% deduction.
	assert.Equal(t, float64(50), successes[0].DeductionPct)

	got, err := store.GetTransactionByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Meals", got.Category)
	assert.Equal(t, float64(50), got.DeductionPct)
	// Classification never finalizes on its own; review does that.
	assert.Equal(t, model.StatusPending, got.Status)
}

func TestClassifyCacheHitSkipsModel(t *testing.T) {
	ctx := context.Background()
	classifier := &mockClassifier{
		results: map[string]model.ClassificationResult{"STARBUCKS": mealResult()},
	}
	// Same fingerprint, amount, and kind: the second transaction shares
	// the first one's cache entry even across runs.
	engine, _, _ := newTestEngine(t, classifier,
		testTxn("t1", "STARBUCKS", -6.75),
		testTxn("t2", "STARBUCKS", -6.75),
	)

	events, err := engine.Classify(ctx, []string{"t1"})
	require.NoError(t, err)
	drain(t, events)
	require.Equal(t, 1, classifier.callCount())

	events, err = engine.Classify(ctx, []string{"t2"})
	require.NoError(t, err)
	all := drain(t, events)

	assert.Equal(t, 1, classifier.callCount(), "cached fingerprint must not reach the model")
	done := lastDone(t, all)
	assert.Equal(t, 1, done.Successful)
	assert.Equal(t, 1, done.CachedCount)
}

func TestClassifyRuleHitAutoSorts(t *testing.T) {
	ctx := context.Background()
	classifier := &mockClassifier{}
	engine, store, _ := newTestEngine(t, classifier, testTxn("t1", "GITHUB", -10))

	pct := 100.0
	require.NoError(t, store.UpsertAutoSortRule(ctx, &model.AutoSortRule{
		OwnerID:           "owner-1",
		VendorFingerprint: "GITHUB",
		QuickLabel:        "Code hosting",
		BusinessPurpose:   "Development infrastructure",
		Category:          "Software & Subscriptions",
		DeductionPct:      &pct,
	}))

	events, err := engine.Classify(ctx, []string{"t1"})
	require.NoError(t, err)
	all := drain(t, events)

	assert.Zero(t, classifier.callCount(), "rule hit must not reach the model")
	done := lastDone(t, all)
	assert.Equal(t, 1, done.Successful)
	assert.Equal(t, 1, done.CachedCount)

	got, err := store.GetTransactionByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAutoSorted, got.Status)
	assert.Equal(t, "Software & Subscriptions", got.Category)
	assert.Equal(t, "27a", got.ScheduleCLine)
	assert.Equal(t, "Code hosting", got.QuickLabels[0])

	rule, err := store.GetAutoSortRule(ctx, "owner-1", "GITHUB")
	require.NoError(t, err)
	assert.Equal(t, 1, rule.UseCount)
}

func TestClassifyProgressTracksCompletions(t *testing.T) {
	// Three cache misses with batch size 2: progress must advance as model
	// calls land, not be front-loaded before the batch phase.
	classifier := &mockClassifier{}
	engine, _, _ := newTestEngine(t, classifier,
		testTxn("t1", "A", -1),
		testTxn("t2", "B", -2),
		testTxn("t3", "C", -3),
	)

	events, err := engine.Classify(context.Background(), []string{"t1", "t2", "t3"})
	require.NoError(t, err)
	all := drain(t, events)

	var progresses []ProgressEvent
	for i, event := range all {
		if p, ok := event.(ProgressEvent); ok {
			progresses = append(progresses, p)
			continue
		}
		switch event.(type) {
		case SuccessEvent, ErrorEvent:
			require.Positive(t, i)
			prev, ok := all[i-1].(ProgressEvent)
			require.True(t, ok, "each outcome must follow its own progress event, got %T before %T", all[i-1], event)
			assert.NotEmpty(t, prev.Current)
		}
	}

	require.Len(t, progresses, 3)
	for i, p := range progresses {
		assert.Equal(t, i+1, p.Completed, "completed count must advance with each finished transaction")
		assert.Equal(t, 3, p.Total)
	}
	assert.Equal(t, 3, lastDone(t, all).Successful)
}

func TestClassifyIsolatesPerItemFailures(t *testing.T) {
	ctx := context.Background()
	classifier := &mockClassifier{
		results: map[string]model.ClassificationResult{"STARBUCKS": mealResult()},
		errs:    map[string]error{"MYSTERY": errors.New("model timeout")},
	}
	engine, store, _ := newTestEngine(t, classifier,
		testTxn("t1", "STARBUCKS", -6.75),
		testTxn("t2", "MYSTERY", -42),
		testTxn("t3", "STARBUCKS", -4.25),
	)

	events, err := engine.Classify(ctx, []string{"t1", "t2", "t3"})
	require.NoError(t, err)
	all := drain(t, events)

	done := lastDone(t, all)
	assert.Equal(t, 2, done.Successful)
	require.Len(t, errorEvents(all), 1)
	assert.Contains(t, errorEvents(all)[0].Message, "MYSTERY")

	// The failed transaction stays unclassified for a later retry.
	got, err := store.GetTransactionByID(ctx, "t2")
	require.NoError(t, err)
	assert.Empty(t, got.Category)
}

func TestClassifyUnknownIDEmitsError(t *testing.T) {
	engine, _, _ := newTestEngine(t, &mockClassifier{}, testTxn("t1", "STARBUCKS", -6.75))

	events, err := engine.Classify(context.Background(), []string{"t1", "missing"})
	require.NoError(t, err)
	all := drain(t, events)

	done := lastDone(t, all)
	assert.Equal(t, 1, done.Successful)
	require.Len(t, errorEvents(all), 1)
	assert.Contains(t, errorEvents(all)[0].Message, "missing")
}

func TestClassifyBatchesSequentially(t *testing.T) {
	// With batch size 2 and four misses, at most two classifications may
	// ever be in flight together.
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0

	classifier := classifierFunc(func(_ context.Context, _ model.Transaction) (model.ClassificationResult, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return mealResult(), nil
	})

	engine, _, _ := newTestEngine(t, classifier,
		testTxn("t1", "A", -1),
		testTxn("t2", "B", -2),
		testTxn("t3", "C", -3),
		testTxn("t4", "D", -4),
	)

	events, err := engine.Classify(context.Background(), []string{"t1", "t2", "t3", "t4"})
	require.NoError(t, err)
	all := drain(t, events)

	assert.Equal(t, 4, lastDone(t, all).Successful)
	assert.LessOrEqual(t, maxInFlight, 2)
}

type classifierFunc func(ctx context.Context, txn model.Transaction) (model.ClassificationResult, error)

func (f classifierFunc) Classify(ctx context.Context, txn model.Transaction) (model.ClassificationResult, error) {
	return f(ctx, txn)
}

func TestClassifyPersonalKeepsZeroPercent(t *testing.T) {
	ctx := context.Background()
	classifier := &mockClassifier{
		results: map[string]model.ClassificationResult{"STARBUCKS": mealResult()},
	}
	engine, store, _ := newTestEngine(t, classifier, testTxn("t1", "STARBUCKS", -6.75))
	require.NoError(t, store.UpdateStatus(ctx, "t1", model.StatusPersonal))

	events, err := engine.Classify(ctx, []string{"t1"})
	require.NoError(t, err)
	all := drain(t, events)

	successes := successEvents(all)
	require.Len(t, successes, 1)
	assert.Zero(t, successes[0].DeductionPct)

	got, err := store.GetTransactionByID(ctx, "t1")
	require.NoError(t, err)
	assert.Zero(t, got.DeductionPct)
}
