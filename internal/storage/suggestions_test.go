package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ecomstack/shelfsort/internal/common"
	"github.com/ecomstack/shelfsort/internal/model"
)

func TestRecordSuggestionMergesByName(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	ctx := context.Background()

	if err := store.RecordSuggestion(ctx, "Trail Running", "Men > Shoes", "prod-1"); err != nil {
		t.Fatalf("Failed to record suggestion: %v", err)
	}
	if err := store.RecordSuggestion(ctx, "Trail Running", "Men > Shoes", "prod-2"); err != nil {
		t.Fatalf("Failed to merge suggestion: %v", err)
	}
	// Same (name, product) pair again: must not inflate the count.
	if err := store.RecordSuggestion(ctx, "Trail Running", "Men > Shoes", "prod-1"); err != nil {
		t.Fatalf("Idempotent re-record failed: %v", err)
	}

	record, err := store.GetSuggestionByName(ctx, "Trail Running")
	if err != nil {
		t.Fatalf("Failed to fetch suggestion: %v", err)
	}

	if record.ProductCount != 2 {
		t.Errorf("ProductCount = %d, want 2", record.ProductCount)
	}
	if len(record.ProductIDs) != 2 {
		t.Errorf("ProductIDs = %v, want two ids", record.ProductIDs)
	}
	if record.Status != model.SuggestionPending {
		t.Errorf("Status = %q, want pending", record.Status)
	}
	if record.ParentCollection != "Men > Shoes" {
		t.Errorf("ParentCollection = %q", record.ParentCollection)
	}
}

func TestRecordSuggestionWithoutProductID(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	ctx := context.Background()

	// A suggestion can arrive before the owning product is known.
	if err := store.RecordSuggestion(ctx, "Cycling", "Sports", ""); err != nil {
		t.Fatalf("Failed to record suggestion: %v", err)
	}

	record, err := store.GetSuggestionByName(ctx, "Cycling")
	if err != nil {
		t.Fatalf("Failed to fetch suggestion: %v", err)
	}
	if record.ProductCount != 0 {
		t.Errorf("ProductCount = %d, want 0", record.ProductCount)
	}

	// The product id attaches later.
	if err := store.RecordSuggestion(ctx, "Cycling", "Sports", "prod-9"); err != nil {
		t.Fatalf("Failed to attach product: %v", err)
	}
	record, _ = store.GetSuggestionByName(ctx, "Cycling")
	if record.ProductCount != 1 {
		t.Errorf("ProductCount = %d, want 1", record.ProductCount)
	}
}

func TestGetReadySuggestions(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := store.RecordSuggestion(ctx, "Popular", "Parent", fmt.Sprintf("prod-%d", i)); err != nil {
			t.Fatalf("Failed to record: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		if err := store.RecordSuggestion(ctx, "Niche", "Parent", fmt.Sprintf("prod-%d", i)); err != nil {
			t.Fatalf("Failed to record: %v", err)
		}
	}

	ready, err := store.GetReadySuggestions(ctx, 5)
	if err != nil {
		t.Fatalf("Failed to get ready suggestions: %v", err)
	}

	if len(ready) != 1 || ready[0].SuggestedName != "Popular" {
		t.Errorf("ready = %+v, want only Popular", ready)
	}
}

func TestGetReadySuggestionsExcludesReviewed(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := store.RecordSuggestion(ctx, "Reviewed", "Parent", fmt.Sprintf("prod-%d", i)); err != nil {
			t.Fatalf("Failed to record: %v", err)
		}
	}

	record, _ := store.GetSuggestionByName(ctx, "Reviewed")
	if err := store.UpdateSuggestionStatus(ctx, record.ID, model.SuggestionApproved); err != nil {
		t.Fatalf("Failed to approve: %v", err)
	}

	ready, err := store.GetReadySuggestions(ctx, 5)
	if err != nil {
		t.Fatalf("Failed to get ready suggestions: %v", err)
	}
	if len(ready) != 0 {
		t.Errorf("ready = %+v, want none after review", ready)
	}
}

func TestUpdateSuggestionStatusNotFound(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	err := store.UpdateSuggestionStatus(context.Background(), 9999, model.SuggestionRejected)
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListSuggestionsOrdersBySupport(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	ctx := context.Background()

	_ = store.RecordSuggestion(ctx, "One", "P", "prod-1")
	for i := 0; i < 3; i++ {
		_ = store.RecordSuggestion(ctx, "Three", "P", fmt.Sprintf("prod-%d", i))
	}

	records, err := store.ListSuggestions(ctx)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].SuggestedName != "Three" {
		t.Errorf("first record = %q, want most-supported first", records[0].SuggestedName)
	}
}
