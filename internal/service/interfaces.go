// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/ecomstack/shelfsort/internal/model"
)

// Storage defines the contract for the persistence layer. All mutations
// are scoped to a single logical operation (one queue entry, one
// suggestion update, one full hierarchy rebuild) and committed before the
// call returns.
type Storage interface {
	// Hierarchy operations. ReplaceHierarchy deletes and rebuilds the
	// entire snapshot in one transaction.
	ReplaceHierarchy(ctx context.Context, nodes []model.CategoryNode) error
	GetNodesByLevel(ctx context.Context, level int) ([]model.CategoryNode, error)
	GetLevelMap(ctx context.Context) (map[string]int, error)
	CountNodesByLevel(ctx context.Context) (map[int]int, error)
	IncrementProductCounts(ctx context.Context, collectionIDs []string) error

	// Queue operations.
	EnqueueProduct(ctx context.Context, productID, title, description string) (bool, error)
	GetPendingEntries(ctx context.Context, limit, maxRetries int) ([]model.QueueEntry, error)
	GetEntryByProductID(ctx context.Context, productID string) (*model.QueueEntry, error)
	MarkEntryProcessed(ctx context.Context, id int64, assigned []model.AssignedCategory, confidences []float64) error
	MarkEntryError(ctx context.Context, id int64, message string) error
	MarkEntryApplied(ctx context.Context, id int64) error
	GetProcessedUnapplied(ctx context.Context, limit int) ([]model.QueueEntry, error)
	GetRecentEntries(ctx context.Context, status model.QueueStatus, limit int) ([]model.QueueEntry, error)
	ResetErrorsToPending(ctx context.Context) (int, error)
	CountEntriesByStatus(ctx context.Context) (map[model.QueueStatus]int, error)

	// Suggestion operations. RecordSuggestion is idempotent for a given
	// (name, productID) pair.
	RecordSuggestion(ctx context.Context, name, parentCollection, productID string) error
	GetSuggestionByName(ctx context.Context, name string) (*model.SuggestionRecord, error)
	ListSuggestions(ctx context.Context) ([]model.SuggestionRecord, error)
	GetReadySuggestions(ctx context.Context, minProducts int) ([]model.SuggestionRecord, error)
	UpdateSuggestionStatus(ctx context.Context, id int64, status model.SuggestionStatus) error

	// Database management.
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
}

// QueueStats aggregates counts for the review surface.
type QueueStats struct {
	ByStatus         map[model.QueueStatus]int
	HierarchyByLevel map[int]int
	TotalQueued      int
	TotalCollections int
	Suggestions      int
	ReadySuggestions int
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
