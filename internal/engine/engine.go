// Package engine implements the classification-and-reconciliation
// pipeline: hierarchy sync, product scanning, queue draining, and
// pushing accepted assignments back to the catalog.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ecomstack/shelfsort/internal/model"
	"github.com/ecomstack/shelfsort/internal/service"
)

// Engine orchestrates the pipeline over the shared store.
type Engine struct {
	store      service.Storage
	classifier Classifier
	catalog    CatalogReader
	reconciler Reconciler
	cfg        Config
}

const defaultApplyLimit = 100

// Config holds configuration options for the engine.
type Config struct {
	Separator        string
	BatchSize        int
	MaxRetries       int
	MaxL3            int
	ItemDelay        time.Duration
	ApplyConfidence  float64
	MaxIngestDescLen int
	CleanupExcess    bool
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Separator:        " > ",
		BatchSize:        10,
		MaxRetries:       3,
		MaxL3:            2,
		ItemDelay:        500 * time.Millisecond,
		ApplyConfidence:  0.8,
		MaxIngestDescLen: 10000,
	}
}

// New creates an engine with the given dependencies.
func New(store service.Storage, classifier Classifier, catalogReader CatalogReader, reconciler Reconciler, cfg Config) *Engine {
	defaults := DefaultConfig()
	if cfg.Separator == "" {
		cfg.Separator = defaults.Separator
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MaxL3 <= 0 {
		cfg.MaxL3 = defaults.MaxL3
	}
	if cfg.ItemDelay <= 0 {
		cfg.ItemDelay = defaults.ItemDelay
	}
	if cfg.ApplyConfidence <= 0 {
		cfg.ApplyConfidence = defaults.ApplyConfidence
	}
	if cfg.MaxIngestDescLen <= 0 {
		cfg.MaxIngestDescLen = defaults.MaxIngestDescLen
	}

	return &Engine{
		store:      store,
		classifier: classifier,
		catalog:    catalogReader,
		reconciler: reconciler,
		cfg:        cfg,
	}
}

// SyncHierarchy pulls every collection from the catalog and rebuilds the
// hierarchy snapshot wholesale. Returns the number of collections seen.
func (e *Engine) SyncHierarchy(ctx context.Context) (int, error) {
	collections, err := e.catalog.ListCollections(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list collections: %w", err)
	}

	nodes := make([]model.CategoryNode, 0, len(collections))
	for _, col := range collections {
		nodes = append(nodes, model.NewCategoryNode(col.ID, col.Handle, col.Title, e.cfg.Separator))
	}

	if err := e.store.ReplaceHierarchy(ctx, nodes); err != nil {
		return 0, fmt.Errorf("failed to rebuild hierarchy: %w", err)
	}

	slog.Info("hierarchy sync complete", "collections", len(collections))
	return len(collections), nil
}

// ScanNewProducts queues every product updated since the given time that
// is not already known to the pipeline. Returns how many entries were
// newly queued.
func (e *Engine) ScanNewProducts(ctx context.Context, since time.Time) (int, error) {
	products, err := e.catalog.ListProducts(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("failed to list products: %w", err)
	}

	queued := 0
	for _, p := range products {
		created, err := e.store.EnqueueProduct(ctx, p.ID, p.Title, truncateRunes(p.Description, e.cfg.MaxIngestDescLen))
		if err != nil {
			slog.Error("failed to enqueue product",
				"product_id", p.ID,
				"error", err)
			continue
		}
		if created {
			queued++
		}
	}

	slog.Info("product scan complete",
		"seen", len(products),
		"queued", queued)
	return queued, nil
}

// DrainQueue classifies up to batchSize pending entries one at a time
// and returns how many reached processed state. Every failure is
// contained to its entry: recorded on the row, logged, and skipped.
func (e *Engine) DrainQueue(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = e.cfg.BatchSize
	}

	entries, err := e.store.GetPendingEntries(ctx, batchSize, e.cfg.MaxRetries)
	if err != nil {
		return 0, fmt.Errorf("failed to select pending entries: %w", err)
	}

	if len(entries) == 0 {
		slog.Debug("queue drain found nothing pending")
		return 0, nil
	}

	processed := 0
	for i, entry := range entries {
		if i > 0 {
			if err := e.sleep(ctx, e.cfg.ItemDelay); err != nil {
				return processed, err
			}
		}

		if e.processEntry(ctx, entry) {
			processed++
		}
	}

	slog.Info("queue drain complete",
		"selected", len(entries),
		"processed", processed)
	return processed, nil
}

// processEntry runs one entry through classification and commits the
// outcome. Returns true if the entry reached processed state.
func (e *Engine) processEntry(ctx context.Context, entry model.QueueEntry) bool {
	if strings.TrimSpace(entry.Title) == "" {
		e.markError(ctx, entry, "Product has no title")
		return false
	}

	result, err := e.classifier.Classify(ctx, entry.Title, entry.Description)
	if err != nil {
		e.markError(ctx, entry, err.Error())
		return false
	}

	if err := e.store.MarkEntryProcessed(ctx, entry.ID, result.Assigned, result.Confidences()); err != nil {
		slog.Error("failed to record classification",
			"product_id", entry.ProductID,
			"error", err)
		e.markError(ctx, entry, err.Error())
		return false
	}

	// Attach this product to the suggestion; the classifier's own merge
	// ran before the product id was known.
	if result.Suggestion != nil {
		if err := e.store.RecordSuggestion(ctx, result.Suggestion.SuggestedName, result.Suggestion.ParentCollection, entry.ProductID); err != nil {
			slog.Error("failed to attach product to suggestion",
				"product_id", entry.ProductID,
				"suggestion", result.Suggestion.SuggestedName,
				"error", err)
		}
	}

	return true
}

func (e *Engine) markError(ctx context.Context, entry model.QueueEntry, message string) {
	slog.Warn("queue entry failed",
		"product_id", entry.ProductID,
		"retry_count", entry.RetryCount+1,
		"error", message)

	if err := e.store.MarkEntryError(ctx, entry.ID, message); err != nil {
		slog.Error("failed to record queue entry error",
			"product_id", entry.ProductID,
			"error", err)
	}
}

// ApplyAssignments pushes accepted assignments for up to limit processed
// entries to the catalog. Only assignments above the confidence
// threshold are ever handed to the reconciler. Returns how many entries
// were marked applied.
func (e *Engine) ApplyAssignments(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultApplyLimit
	}

	entries, err := e.store.GetProcessedUnapplied(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to select entries to apply: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	levelMap, err := e.store.GetLevelMap(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load level map: %w", err)
	}

	applied := 0
	for _, entry := range entries {
		if e.applyEntry(ctx, entry, levelMap) {
			applied++
		}
	}

	slog.Info("assignment apply complete",
		"selected", len(entries),
		"applied", applied)
	return applied, nil
}

// ApplyAccepted pushes one product's accepted assignments on demand.
func (e *Engine) ApplyAccepted(ctx context.Context, productID string) error {
	entry, err := e.store.GetEntryByProductID(ctx, productID)
	if err != nil {
		return err
	}
	if entry.Status != model.StatusProcessed {
		return fmt.Errorf("product %s is %s, not processed", productID, entry.Status)
	}

	levelMap, err := e.store.GetLevelMap(ctx)
	if err != nil {
		return fmt.Errorf("failed to load level map: %w", err)
	}

	if !e.applyEntry(ctx, *entry, levelMap) {
		return fmt.Errorf("failed to apply assignments for product %s", productID)
	}
	return nil
}

// applyEntry reconciles one entry's accepted assignments. Returns true
// if the entry was marked applied.
func (e *Engine) applyEntry(ctx context.Context, entry model.QueueEntry, levelMap map[string]int) bool {
	var targets []string
	for _, a := range entry.Assigned {
		if a.Confidence > e.cfg.ApplyConfidence {
			targets = append(targets, a.ID)
		}
	}

	if len(targets) == 0 {
		// Nothing confident enough to push; mark applied so the entry
		// is not reselected forever.
		if err := e.store.MarkEntryApplied(ctx, entry.ID); err != nil {
			slog.Error("failed to mark entry applied",
				"product_id", entry.ProductID,
				"error", err)
			return false
		}
		return true
	}

	ok, err := e.reconciler.ApplyCollections(ctx, entry.ProductID, targets, levelMap, e.cfg.MaxL3, e.cfg.CleanupExcess)
	if err != nil || !ok {
		message := "failed to update catalog"
		if err != nil {
			message = fmt.Sprintf("failed to update catalog: %v", err)
		}
		e.markError(ctx, entry, message)
		return false
	}

	if err := e.store.MarkEntryApplied(ctx, entry.ID); err != nil {
		slog.Error("failed to mark entry applied",
			"product_id", entry.ProductID,
			"error", err)
		return false
	}

	if err := e.store.IncrementProductCounts(ctx, targets); err != nil {
		slog.Error("failed to update assignment counters",
			"product_id", entry.ProductID,
			"error", err)
	}

	return true
}

// truncateRunes cuts s to at most n runes, never splitting a rune.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
