package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecomstack/shelfsort/internal/catalog"
	"github.com/ecomstack/shelfsort/internal/common"
	"github.com/ecomstack/shelfsort/internal/model"
	"github.com/ecomstack/shelfsort/internal/storage"
)

type fakeClassifier struct {
	fn func(title string) (model.ClassificationResult, error)
}

func (f *fakeClassifier) Classify(_ context.Context, title, _ string) (model.ClassificationResult, error) {
	return f.fn(title)
}

type fakeCatalog struct {
	collections []catalog.Collection
	products    []catalog.Product
	listErr     error
}

func (f *fakeCatalog) ListCollections(_ context.Context) ([]catalog.Collection, error) {
	return f.collections, f.listErr
}

func (f *fakeCatalog) ListProducts(_ context.Context, _ time.Time) ([]catalog.Product, error) {
	return f.products, f.listErr
}

type applyCall struct {
	productID string
	targets   []string
	maxL3     int
	cleanup   bool
}

type fakeReconciler struct {
	calls []applyCall
	ok    bool
	err   error
}

func (f *fakeReconciler) ApplyCollections(_ context.Context, productID string, targetIDs []string, _ map[string]int, maxL3 int, cleanup bool) (bool, error) {
	f.calls = append(f.calls, applyCall{productID, targetIDs, maxL3, cleanup})
	return f.ok, f.err
}

func newTestStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testEngineConfig() Config {
	return Config{
		BatchSize: 10,
		ItemDelay: time.Millisecond,
	}
}

func TestSyncHierarchy(t *testing.T) {
	store := newTestStore(t)
	cat := &fakeCatalog{collections: []catalog.Collection{
		{ID: "100", Handle: "men", Title: "Men"},
		{ID: "200", Handle: "men-shoes", Title: "Men > Shoes"},
		{ID: "300", Handle: "men-shoes-running", Title: "Men > Shoes > Running"},
	}}
	e := New(store, &fakeClassifier{}, cat, &fakeReconciler{ok: true}, testEngineConfig())

	count, err := e.SyncHierarchy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	levelMap, err := store.GetLevelMap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"100": 1, "200": 2, "300": 3}, levelMap)
}

func TestScanNewProductsQueuesOnlyUnseen(t *testing.T) {
	store := newTestStore(t)
	cat := &fakeCatalog{products: []catalog.Product{
		{ID: "p1", Title: "Shoe", Description: "desc"},
		{ID: "p2", Title: "Shirt", Description: "desc"},
	}}
	e := New(store, &fakeClassifier{}, cat, &fakeReconciler{ok: true}, testEngineConfig())

	ctx := context.Background()
	queued, err := e.ScanNewProducts(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, queued)

	// Second scan sees the same products; nothing new is queued.
	queued, err = e.ScanNewProducts(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, queued)
}

func TestScanNewProductsTruncatesDescription(t *testing.T) {
	store := newTestStore(t)
	cat := &fakeCatalog{products: []catalog.Product{
		{ID: "p1", Title: "Shoe", Description: strings.Repeat("d", 100)},
	}}
	cfg := testEngineConfig()
	cfg.MaxIngestDescLen = 20
	e := New(store, &fakeClassifier{}, cat, &fakeReconciler{ok: true}, cfg)

	ctx := context.Background()
	_, err := e.ScanNewProducts(ctx, time.Now())
	require.NoError(t, err)

	entry, err := store.GetEntryByProductID(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, entry.Description, 20)
}

func TestScanNewProductsTruncatesOnRuneBoundary(t *testing.T) {
	store := newTestStore(t)
	cat := &fakeCatalog{products: []catalog.Product{
		{ID: "p1", Title: "Gift Card", Description: "abcd€xyz"},
	}}
	cfg := testEngineConfig()
	cfg.MaxIngestDescLen = 5
	e := New(store, &fakeClassifier{}, cat, &fakeReconciler{ok: true}, cfg)

	ctx := context.Background()
	_, err := e.ScanNewProducts(ctx, time.Now())
	require.NoError(t, err)

	entry, err := store.GetEntryByProductID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "abcd€", entry.Description, "multi-byte runes must not be split")
	assert.True(t, utf8.ValidString(entry.Description))
}

func TestDrainQueueProcessesEntries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.EnqueueProduct(ctx, "p1", "Trail Shoe", "desc")
	require.NoError(t, err)

	classifier := &fakeClassifier{fn: func(_ string) (model.ClassificationResult, error) {
		return model.ClassificationResult{
			Assigned: []model.AssignedCategory{
				{ID: "300", Title: "Running", Confidence: 0.92},
			},
		}, nil
	}}
	e := New(store, classifier, &fakeCatalog{}, &fakeReconciler{ok: true}, testEngineConfig())

	processed, err := e.DrainQueue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	entry, err := store.GetEntryByProductID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessed, entry.Status)
	require.Len(t, entry.Assigned, 1)
	assert.Equal(t, "300", entry.Assigned[0].ID)
	assert.Equal(t, []float64{0.92}, entry.Confidences)
	require.NotNil(t, entry.ProcessedAt)
}

func TestDrainQueueUntitledProduct(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.EnqueueProduct(ctx, "p1", "   ", "desc")
	require.NoError(t, err)

	classifier := &fakeClassifier{fn: func(_ string) (model.ClassificationResult, error) {
		t.Fatal("classifier must not run for an untitled product")
		return model.ClassificationResult{}, nil
	}}
	e := New(store, classifier, &fakeCatalog{}, &fakeReconciler{ok: true}, testEngineConfig())

	processed, err := e.DrainQueue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, processed)

	entry, err := store.GetEntryByProductID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, entry.Status)
	assert.Equal(t, "Product has no title", entry.ErrorMessage)
	assert.Equal(t, 1, entry.RetryCount)
}

func TestDrainQueueIsolatesFailures(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		_, err := store.EnqueueProduct(ctx, fmt.Sprintf("p%d", i), fmt.Sprintf("Product %d", i), "desc")
		require.NoError(t, err)
	}

	classifier := &fakeClassifier{fn: func(title string) (model.ClassificationResult, error) {
		if title == "Product 2" {
			return model.ClassificationResult{}, errors.New("model exploded")
		}
		return model.ClassificationResult{}, nil
	}}
	e := New(store, classifier, &fakeCatalog{}, &fakeReconciler{ok: true}, testEngineConfig())

	processed, err := e.DrainQueue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	entry, err := store.GetEntryByProductID(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, entry.Status)
	assert.Contains(t, entry.ErrorMessage, "model exploded")

	for _, pid := range []string{"p1", "p3"} {
		entry, err := store.GetEntryByProductID(ctx, pid)
		require.NoError(t, err)
		assert.Equal(t, model.StatusProcessed, entry.Status)
	}
}

func TestDrainQueueAttachesSuggestionToProduct(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.EnqueueProduct(ctx, "p1", "Odd Gadget", "desc")
	require.NoError(t, err)

	classifier := &fakeClassifier{fn: func(_ string) (model.ClassificationResult, error) {
		return model.ClassificationResult{
			Suggestion: &model.NewCollectionSuggestion{
				SuggestedName:    "Gadgets",
				ParentCollection: "Electronics",
			},
		}, nil
	}}
	e := New(store, classifier, &fakeCatalog{}, &fakeReconciler{ok: true}, testEngineConfig())

	_, err = e.DrainQueue(ctx, 10)
	require.NoError(t, err)

	record, err := store.GetSuggestionByName(ctx, "Gadgets")
	require.NoError(t, err)
	assert.Equal(t, 1, record.ProductCount)
	assert.Equal(t, []string{"p1"}, record.ProductIDs)
}

func markProcessed(t *testing.T, store *storage.SQLiteStorage, productID string, assigned []model.AssignedCategory) {
	t.Helper()
	ctx := context.Background()
	entry, err := store.GetEntryByProductID(ctx, productID)
	require.NoError(t, err)
	confidences := make([]float64, len(assigned))
	for i, a := range assigned {
		confidences[i] = a.Confidence
	}
	require.NoError(t, store.MarkEntryProcessed(ctx, entry.ID, assigned, confidences))
}

func TestApplyAssignmentsFiltersByConfidence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.EnqueueProduct(ctx, "p1", "Shoe", "desc")
	require.NoError(t, err)
	markProcessed(t, store, "p1", []model.AssignedCategory{
		{ID: "300", Title: "Running", Confidence: 0.92},
		{ID: "301", Title: "Hiking", Confidence: 0.80}, // exactly at the threshold: excluded
	})

	rec := &fakeReconciler{ok: true}
	cfg := testEngineConfig()
	cfg.MaxL3 = 2
	e := New(store, &fakeClassifier{}, &fakeCatalog{}, rec, cfg)

	applied, err := e.ApplyAssignments(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, "p1", rec.calls[0].productID)
	assert.Equal(t, []string{"300"}, rec.calls[0].targets)
	assert.Equal(t, 2, rec.calls[0].maxL3)

	entry, err := store.GetEntryByProductID(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, entry.Applied)
}

func TestApplyAssignmentsNothingConfident(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.EnqueueProduct(ctx, "p1", "Shoe", "desc")
	require.NoError(t, err)
	markProcessed(t, store, "p1", []model.AssignedCategory{
		{ID: "300", Title: "Running", Confidence: 0.4},
	})

	rec := &fakeReconciler{ok: true}
	e := New(store, &fakeClassifier{}, &fakeCatalog{}, rec, testEngineConfig())

	applied, err := e.ApplyAssignments(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	// No catalog writes, but the entry leaves the apply backlog.
	assert.Empty(t, rec.calls)
	entry, err := store.GetEntryByProductID(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, entry.Applied)

	unapplied, err := store.GetProcessedUnapplied(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unapplied)
}

func TestApplyAssignmentsReconcilerFailure(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.EnqueueProduct(ctx, "p1", "Shoe", "desc")
	require.NoError(t, err)
	markProcessed(t, store, "p1", []model.AssignedCategory{
		{ID: "300", Title: "Running", Confidence: 0.95},
	})

	rec := &fakeReconciler{err: errors.New("api down")}
	e := New(store, &fakeClassifier{}, &fakeCatalog{}, rec, testEngineConfig())

	applied, err := e.ApplyAssignments(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)

	entry, err := store.GetEntryByProductID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, entry.Status)
	assert.Contains(t, entry.ErrorMessage, "failed to update catalog")
	assert.False(t, entry.Applied)
}

func TestApplyAssignmentsIncrementsProductCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ReplaceHierarchy(ctx, []model.CategoryNode{
		model.NewCategoryNode("300", "running", "Men > Shoes > Running", " > "),
	}))
	_, err := store.EnqueueProduct(ctx, "p1", "Shoe", "desc")
	require.NoError(t, err)
	markProcessed(t, store, "p1", []model.AssignedCategory{
		{ID: "300", Title: "Running", Confidence: 0.95},
	})

	e := New(store, &fakeClassifier{}, &fakeCatalog{}, &fakeReconciler{ok: true}, testEngineConfig())

	_, err = e.ApplyAssignments(ctx, 10)
	require.NoError(t, err)

	nodes, err := store.GetNodesByLevel(ctx, 3)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, 1, nodes[0].ProductCount)
}

func TestApplyAcceptedRequiresProcessedEntry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.EnqueueProduct(ctx, "p1", "Shoe", "desc")
	require.NoError(t, err)

	e := New(store, &fakeClassifier{}, &fakeCatalog{}, &fakeReconciler{ok: true}, testEngineConfig())

	err = e.ApplyAccepted(ctx, "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not processed")
}

func TestApplyAcceptedUnknownProduct(t *testing.T) {
	store := newTestStore(t)
	e := New(store, &fakeClassifier{}, &fakeCatalog{}, &fakeReconciler{ok: true}, testEngineConfig())

	err := e.ApplyAccepted(context.Background(), "ghost")
	require.ErrorIs(t, err, common.ErrNotFound)
}
