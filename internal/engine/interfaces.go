package engine

import (
	"context"
	"time"

	"github.com/ecomstack/shelfsort/internal/catalog"
	"github.com/ecomstack/shelfsort/internal/model"
)

// Classifier defines the contract for product categorization.
type Classifier interface {
	Classify(ctx context.Context, title, description string) (model.ClassificationResult, error)
}

// CatalogReader lists collections and products from the storefront.
type CatalogReader interface {
	ListCollections(ctx context.Context) ([]catalog.Collection, error)
	ListProducts(ctx context.Context, updatedSince time.Time) ([]catalog.Product, error)
}

// Reconciler applies accepted assignments to the storefront catalog.
type Reconciler interface {
	ApplyCollections(ctx context.Context, productID string, targetIDs []string, levelMap map[string]int, maxL3 int, cleanup bool) (bool, error)
}
