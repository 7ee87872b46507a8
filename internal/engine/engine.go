// Package engine drives transaction classification: cache-first lookups,
// batched model calls, auto-sort rule application, and similarity matching.
// Results stream out as a closed set of typed events that the transport
// layer serializes.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taxquill/taxquill/internal/cache"
	"github.com/taxquill/taxquill/internal/catalog"
	"github.com/taxquill/taxquill/internal/common"
	"github.com/taxquill/taxquill/internal/model"
	"github.com/taxquill/taxquill/internal/service"
)

// defaultBatchSize bounds concurrent in-flight model calls. Batches run
// concurrently inside and sequentially across, so at most batchSize calls
// are outstanding at any moment.
const defaultBatchSize = 5

// Classifier produces a structured classification for one transaction.
// The production implementation wraps an LLM provider; tests use a mock.
type Classifier interface {
	Classify(ctx context.Context, txn model.Transaction) (model.ClassificationResult, error)
}

// Options tunes the classification engine.
type Options struct {
	BatchSize int
}

// ClassificationEngine orchestrates a classification run over a set of
// transaction IDs. Each run resolves every transaction through, in order:
// an existing auto-sort rule, the shared classification cache, then the
// external model. Every result is persisted per item as soon as it lands,
// so an abandoned event stream never rolls back partial progress.
type ClassificationEngine struct {
	storage    service.Storage
	classifier Classifier
	cache      *cache.ClassificationCache
	logger     *slog.Logger
	batchSize  int
}

// NewClassificationEngine wires an engine around its collaborators. The
// cache is owned by the caller and may be shared across engines.
func NewClassificationEngine(storage service.Storage, classifier Classifier, c *cache.ClassificationCache, logger *slog.Logger, opts Options) *ClassificationEngine {
	if logger == nil {
		logger = slog.Default()
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &ClassificationEngine{
		storage:    storage,
		classifier: classifier,
		cache:      c,
		logger:     logger,
		batchSize:  batchSize,
	}
}

// Classify starts a classification run and returns its event stream. The
// returned channel is buffered for the whole run and closed after the
// terminal done event, so a caller that stops reading leaves the run to
// finish and persist in the background.
//
// Malformed input is rejected up front as a request-level error; everything
// after that point is reported per transaction on the stream.
func (e *ClassificationEngine) Classify(ctx context.Context, ids []string) (<-chan Event, error) {
	for _, id := range ids {
		if id == "" {
			return nil, fmt.Errorf("%w: transaction id must not be empty", common.ErrInvalidConfig)
		}
	}

	// Exactly two events per transaction (progress + success/error)
	// plus the done event. Sized so writes never block on a slow or
	// absent consumer.
	events := make(chan Event, len(ids)*2+1)

	if len(ids) == 0 {
		events <- DoneEvent{}
		close(events)
		return events, nil
	}

	go e.run(ctx, ids, events)
	return events, nil
}

// runState tracks counters shared across a batch's goroutines.
type runState struct {
	mu         sync.Mutex
	total      int
	completed  int
	successful int
	cached     int
}

// finish records one completed transaction and emits its progress event
// followed by the outcome. Both go out under the lock so the completed
// count stays monotonic even when a batch lands out of order; the channel
// is buffered for the whole run, so sending here never blocks.
func (s *runState) finish(events chan<- Event, current string, outcome Event, successful, cached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed++
	if successful {
		s.successful++
	}
	if cached {
		s.cached++
	}
	events <- ProgressEvent{Current: current, Completed: s.completed, Total: s.total}
	events <- outcome
}

func (e *ClassificationEngine) run(ctx context.Context, ids []string, events chan<- Event) {
	defer close(events)
	started := time.Now()

	total := len(ids)
	state := &runState{total: total}
	var misses []model.Transaction

	// Rule and cache hits resolve sequentially; only genuine misses go to
	// the model.
	for _, id := range ids {
		txn, err := e.storage.GetTransactionByID(ctx, id)
		if err != nil {
			e.logger.Warn("skipping unknown transaction", "transaction_id", id, "error", err)
			state.finish(events, id, ErrorEvent{Message: fmt.Sprintf("transaction %s: %v", id, err)}, false, false)
			continue
		}

		if e.resolveWithoutModel(ctx, txn, state, events) {
			continue
		}
		misses = append(misses, *txn)
	}

	for start := 0; start < len(misses); start += e.batchSize {
		end := start + e.batchSize
		if end > len(misses) {
			end = len(misses)
		}
		e.classifyBatch(ctx, misses[start:end], state, events)
	}

	stats := service.CompletionStats{
		Duration:   time.Since(started),
		Total:      total,
		Successful: state.successful,
		CacheHits:  state.cached,
		Failed:     total - state.successful,
	}
	e.logger.Info("classification run finished",
		"total", stats.Total,
		"successful", stats.Successful,
		"cache_hits", stats.CacheHits,
		"failed", stats.Failed,
		"duration", stats.Duration)

	events <- DoneEvent{Successful: state.successful, CachedCount: state.cached}
}

// resolveWithoutModel tries the owner's auto-sort rule and then the cache.
// Both paths persist and emit like a model result; reporting counts them as
// cached since no external call happened.
func (e *ClassificationEngine) resolveWithoutModel(ctx context.Context, txn *model.Transaction, state *runState, events chan<- Event) bool {
	if txn.Status == model.StatusPending {
		rule, err := e.storage.GetAutoSortRule(ctx, txn.OwnerID, txn.VendorNormalized)
		if err == nil && rule.Category != "" && e.applyRule(ctx, txn, rule, state, events) {
			return true
		}
	}

	result, ok := e.cache.Get(txn.CacheKey())
	if !ok {
		return false
	}

	e.logger.Debug("cache hit", "transaction_id", txn.ID, "vendor", txn.VendorNormalized)
	e.persistAndEmit(ctx, txn, result, true, state, events)
	return true
}

// applyRule classifies a pending transaction from its owner's stored rule
// and moves it to auto_sorted, skipping the model entirely.
func (e *ClassificationEngine) applyRule(ctx context.Context, txn *model.Transaction, rule *model.AutoSortRule, state *runState, events chan<- Event) bool {
	result := model.ClassificationResult{
		Category:      rule.Category,
		ScheduleCLine: catalog.LineFor(rule.Category),
		Confidence:    1,
		Reasoning:     "Matched auto-sort rule for " + rule.VendorFingerprint,
		QuickLabels:   []string{rule.QuickLabel},
	}
	if c, ok := catalog.Lookup(rule.Category); ok {
		result.IsMeal = c.IsMeal
		result.IsTravel = c.IsTravel
	}

	pct := result.DefaultDeductionPct()
	if rule.DeductionPct != nil {
		pct = *rule.DeductionPct
	}

	if err := e.storage.UpdateClassification(ctx, txn.ID, result, pct); err != nil {
		e.logger.Error("failed to apply rule", "transaction_id", txn.ID, "error", err)
		return false
	}
	if err := e.storage.UpdateStatus(ctx, txn.ID, model.StatusAutoSorted); err != nil {
		e.logger.Error("failed to mark auto-sorted", "transaction_id", txn.ID, "error", err)
	}

	if err := e.storage.IncrementRuleUse(ctx, rule.OwnerID, rule.VendorFingerprint); err != nil {
		e.logger.Warn("failed to bump rule use count", "transaction_id", txn.ID, "error", err)
	}

	e.logger.Debug("rule hit", "transaction_id", txn.ID, "vendor", txn.VendorNormalized)
	state.finish(events, txn.Vendor, SuccessEvent{
		ID:           txn.ID,
		Category:     result.Category,
		Line:         result.ScheduleCLine,
		QuickLabels:  result.QuickLabels,
		Confidence:   result.Confidence,
		DeductionPct: pct,
		IsMeal:       result.IsMeal,
		IsTravel:     result.IsTravel,
	}, true, true)
	return true
}

// classifyBatch runs one fixed-size batch concurrently and waits for all of
// it before the next batch starts. Each item is isolated: a failed call or
// write produces an error event and the rest of the batch proceeds.
func (e *ClassificationEngine) classifyBatch(ctx context.Context, batch []model.Transaction, state *runState, events chan<- Event) {
	var wg sync.WaitGroup
	for i := range batch {
		wg.Add(1)
		go func(txn model.Transaction) {
			defer wg.Done()

			result, err := e.classifier.Classify(ctx, txn)
			if err != nil {
				e.logger.Warn("classification failed",
					"transaction_id", txn.ID,
					"vendor", txn.Vendor,
					"error", err)
				state.finish(events, txn.Vendor, ErrorEvent{Message: fmt.Sprintf("failed to classify %q: %v", txn.Vendor, err)}, false, false)
				return
			}

			e.cache.Set(txn.CacheKey(), result)
			e.persistAndEmit(ctx, &txn, result, false, state, events)
		}(batch[i])
	}
	wg.Wait()
}

// persistAndEmit writes one result to storage and reports it on the stream.
// A persistence failure downgrades the item to an error event so a reported
// success always means "on disk".
func (e *ClassificationEngine) persistAndEmit(ctx context.Context, txn *model.Transaction, result model.ClassificationResult, fromCache bool, state *runState, events chan<- Event) {
	pct := result.DefaultDeductionPct()
	if txn.Status == model.StatusPersonal {
		pct = 0
	}

	if err := e.storage.UpdateClassification(ctx, txn.ID, result, pct); err != nil {
		e.logger.Error("failed to persist classification", "transaction_id", txn.ID, "error", err)
		state.finish(events, txn.Vendor, ErrorEvent{Message: fmt.Sprintf("failed to save classification for %q: %v", txn.Vendor, err)}, false, false)
		return
	}

	state.finish(events, txn.Vendor, SuccessEvent{
		ID:           txn.ID,
		Category:     result.Category,
		Line:         result.ScheduleCLine,
		QuickLabels:  result.QuickLabels,
		Confidence:   result.Confidence,
		DeductionPct: pct,
		IsMeal:       result.IsMeal,
		IsTravel:     result.IsTravel,
	}, true, fromCache)
}
