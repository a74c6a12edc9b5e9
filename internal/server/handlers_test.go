package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecomstack/shelfsort/internal/model"
	"github.com/ecomstack/shelfsort/internal/storage"
)

type fakePipeline struct {
	syncCount  int
	scanCount  int
	drainCount int
	applyCount int
	lastSince  time.Time
	err        error
}

func (f *fakePipeline) SyncHierarchy(_ context.Context) (int, error) {
	return f.syncCount, f.err
}

func (f *fakePipeline) ScanNewProducts(_ context.Context, since time.Time) (int, error) {
	f.lastSince = since
	return f.scanCount, f.err
}

func (f *fakePipeline) DrainQueue(_ context.Context, _ int) (int, error) {
	return f.drainCount, f.err
}

func (f *fakePipeline) ApplyAssignments(_ context.Context, _ int) (int, error) {
	return f.applyCount, f.err
}

func newTestServer(t *testing.T) (*Server, *storage.SQLiteStorage, *fakePipeline) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	pipeline := &fakePipeline{}
	srv := New(store, pipeline, Config{MinReadyCount: 2}, slog.Default())
	return srv, store, pipeline
}

func doRequest(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestStatsEndpoint(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()

	_, err := store.EnqueueProduct(ctx, "p1", "Shoe", "desc")
	require.NoError(t, err)
	_, err = store.EnqueueProduct(ctx, "p2", "Shirt", "desc")
	require.NoError(t, err)
	require.NoError(t, store.ReplaceHierarchy(ctx, []model.CategoryNode{
		model.NewCategoryNode("100", "men", "Men", " > "),
	}))
	require.NoError(t, store.RecordSuggestion(ctx, "Gadgets", "Electronics", "p1"))
	require.NoError(t, store.RecordSuggestion(ctx, "Gadgets", "Electronics", "p2"))

	rec := doRequest(t, srv, http.MethodGet, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	queue := body["queue"].(map[string]any)
	assert.Equal(t, float64(2), queue["total"])

	hierarchy := body["hierarchy"].(map[string]any)
	assert.Equal(t, float64(1), hierarchy["total"])

	suggestions := body["suggestions"].(map[string]any)
	assert.Equal(t, float64(1), suggestions["total"])
	assert.Equal(t, float64(1), suggestions["ready"], "two backing products meet the test threshold")
}

func TestQueueEndpoint(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()

	_, err := store.EnqueueProduct(ctx, "p1", "Shoe", "desc")
	require.NoError(t, err)

	rec := doRequest(t, srv, http.MethodGet, "/queue?status=pending")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["count"])

	rec = doRequest(t, srv, http.MethodGet, "/queue?status=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuggestionReviewEndpoints(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.RecordSuggestion(ctx, "Gadgets", "Electronics", "p1"))
	record, err := store.GetSuggestionByName(ctx, "Gadgets")
	require.NoError(t, err)

	rec := doRequest(t, srv, http.MethodPost, fmt.Sprintf("/suggestions/%d/approve", record.ID))
	require.Equal(t, http.StatusOK, rec.Code)

	updated, err := store.GetSuggestionByName(ctx, "Gadgets")
	require.NoError(t, err)
	assert.Equal(t, model.SuggestionApproved, updated.Status)

	rec = doRequest(t, srv, http.MethodPost, "/suggestions/9999/reject")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/suggestions/abc/approve")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorsResetEndpoint(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()

	_, err := store.EnqueueProduct(ctx, "p1", "Shoe", "desc")
	require.NoError(t, err)
	entry, err := store.GetEntryByProductID(ctx, "p1")
	require.NoError(t, err)
	require.NoError(t, store.MarkEntryError(ctx, entry.ID, "boom"))

	rec := doRequest(t, srv, http.MethodPost, "/errors/reset")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["reset"])

	got, err := store.GetEntryByProductID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
}

func TestJobEndpoints(t *testing.T) {
	srv, _, pipeline := newTestServer(t)
	pipeline.syncCount = 7
	pipeline.scanCount = 3
	pipeline.drainCount = 2
	pipeline.applyCount = 1

	rec := doRequest(t, srv, http.MethodPost, "/jobs/sync")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(7), decodeBody(t, rec)["collections"])

	rec = doRequest(t, srv, http.MethodPost, "/jobs/scan")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), decodeBody(t, rec)["queued"])

	rec = doRequest(t, srv, http.MethodPost, "/jobs/drain")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["processed"])

	rec = doRequest(t, srv, http.MethodPost, "/jobs/apply")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["applied"])
}

func TestJobScanWithExplicitSince(t *testing.T) {
	srv, _, pipeline := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/jobs/scan?since=2026-08-01T00:00:00Z")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2026, pipeline.lastSince.Year())

	rec = doRequest(t, srv, http.MethodPost, "/jobs/scan?since=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
