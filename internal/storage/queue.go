package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ecomstack/shelfsort/internal/common"
	"github.com/ecomstack/shelfsort/internal/model"
)

const queueColumns = `id, product_id, title, description, status, created_at, processed_at,
	assigned_collections, confidence_scores, error_message, retry_count, applied`

// EnqueueProduct inserts a queue entry for the product if one does not
// exist yet. Returns true if a new entry was created. The unique
// constraint on product_id is the safety net against concurrent scans.
func (s *SQLiteStorage) EnqueueProduct(ctx context.Context, productID, title, description string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(productID, "productID"); err != nil {
		return false, err
	}

	query := `
		INSERT OR IGNORE INTO product_queue (product_id, title, description, status, created_at)
		VALUES (?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query, productID, title, description, model.StatusPending, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to enqueue product %s: %w", productID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read enqueue result: %w", err)
	}

	return affected > 0, nil
}

// GetPendingEntries returns up to limit pending entries whose retry
// counter is below maxRetries, in insertion order.
func (s *SQLiteStorage) GetPendingEntries(ctx context.Context, limit, maxRetries int) ([]model.QueueEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM product_queue
		WHERE status = ? AND retry_count < ?
		ORDER BY id
		LIMIT ?`, queueColumns)

	return s.queryEntries(ctx, query, model.StatusPending, maxRetries, limit)
}

// GetEntryByProductID returns the queue entry for the given external
// product id, or common.ErrNotFound.
func (s *SQLiteStorage) GetEntryByProductID(ctx context.Context, productID string) (*model.QueueEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(productID, "productID"); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM product_queue WHERE product_id = ?`, queueColumns)

	entries, err := s.queryEntries(ctx, query, productID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("queue entry for product %s: %w", productID, common.ErrNotFound)
	}
	return &entries[0], nil
}

// MarkEntryProcessed records a successful classification: assignments,
// confidence scores, status and the processed timestamp, in one commit.
func (s *SQLiteStorage) MarkEntryProcessed(ctx context.Context, id int64, assigned []model.AssignedCategory, confidences []float64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(id, "id"); err != nil {
		return err
	}

	assignedJSON, err := json.Marshal(assigned)
	if err != nil {
		return fmt.Errorf("failed to encode assignments: %w", err)
	}
	confidenceJSON, err := json.Marshal(confidences)
	if err != nil {
		return fmt.Errorf("failed to encode confidence scores: %w", err)
	}

	query := `
		UPDATE product_queue
		SET status = ?, assigned_collections = ?, confidence_scores = ?,
			processed_at = ?, error_message = ''
		WHERE id = ?`

	if _, err := s.db.ExecContext(ctx, query,
		model.StatusProcessed, string(assignedJSON), string(confidenceJSON), time.Now().UTC(), id,
	); err != nil {
		return fmt.Errorf("failed to mark entry %d processed: %w", id, err)
	}

	return nil
}

// MarkEntryError records a failed classification attempt and increments
// the retry counter.
func (s *SQLiteStorage) MarkEntryError(ctx context.Context, id int64, message string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(id, "id"); err != nil {
		return err
	}
	if message == "" {
		message = "unknown error"
	}

	query := `
		UPDATE product_queue
		SET status = ?, error_message = ?, retry_count = retry_count + 1
		WHERE id = ?`

	if _, err := s.db.ExecContext(ctx, query, model.StatusError, message, id); err != nil {
		return fmt.Errorf("failed to mark entry %d errored: %w", id, err)
	}

	return nil
}

// MarkEntryApplied flags an entry whose assignments have been pushed to
// the catalog.
func (s *SQLiteStorage) MarkEntryApplied(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(id, "id"); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE product_queue SET applied = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to mark entry %d applied: %w", id, err)
	}

	return nil
}

// GetProcessedUnapplied returns processed entries whose assignments have
// not been pushed to the catalog yet, in insertion order.
func (s *SQLiteStorage) GetProcessedUnapplied(ctx context.Context, limit int) ([]model.QueueEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM product_queue
		WHERE status = ? AND applied = 0
		ORDER BY id
		LIMIT ?`, queueColumns)

	return s.queryEntries(ctx, query, model.StatusProcessed, limit)
}

// GetRecentEntries returns the most recent entries with the given status.
func (s *SQLiteStorage) GetRecentEntries(ctx context.Context, status model.QueueStatus, limit int) ([]model.QueueEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM product_queue
		WHERE status = ?
		ORDER BY id DESC
		LIMIT ?`, queueColumns)

	return s.queryEntries(ctx, query, status, limit)
}

// ResetErrorsToPending resets all errored entries for another round of
// classification and returns how many were reset.
func (s *SQLiteStorage) ResetErrorsToPending(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	query := `
		UPDATE product_queue
		SET status = ?, error_message = '', retry_count = 0
		WHERE status = ?`

	result, err := s.db.ExecContext(ctx, query, model.StatusPending, model.StatusError)
	if err != nil {
		return 0, fmt.Errorf("failed to reset errored entries: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read reset result: %w", err)
	}

	slog.Info("reset errored queue entries", "count", affected)
	return int(affected), nil
}

// CountEntriesByStatus returns the number of queue entries per status.
func (s *SQLiteStorage) CountEntriesByStatus(ctx context.Context) (map[model.QueueStatus]int, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM product_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[model.QueueStatus]int)
	for rows.Next() {
		var status model.QueueStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan queue count: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue counts: %w", err)
	}

	return counts, nil
}

func (s *SQLiteStorage) queryEntries(ctx context.Context, query string, args ...any) ([]model.QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.QueueEntry
	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue entries: %w", err)
	}

	return entries, nil
}

func scanQueueEntry(rows *sql.Rows) (model.QueueEntry, error) {
	var entry model.QueueEntry
	var processedAt sql.NullTime
	var assignedJSON, confidenceJSON sql.NullString

	if err := rows.Scan(
		&entry.ID, &entry.ProductID, &entry.Title, &entry.Description, &entry.Status,
		&entry.CreatedAt, &processedAt, &assignedJSON, &confidenceJSON,
		&entry.ErrorMessage, &entry.RetryCount, &entry.Applied,
	); err != nil {
		return model.QueueEntry{}, fmt.Errorf("failed to scan queue entry: %w", err)
	}

	if processedAt.Valid {
		t := processedAt.Time
		entry.ProcessedAt = &t
	}
	if assignedJSON.Valid && assignedJSON.String != "" {
		if err := json.Unmarshal([]byte(assignedJSON.String), &entry.Assigned); err != nil {
			return model.QueueEntry{}, fmt.Errorf("failed to decode assignments for entry %d: %w", entry.ID, err)
		}
	}
	if confidenceJSON.Valid && confidenceJSON.String != "" {
		if err := json.Unmarshal([]byte(confidenceJSON.String), &entry.Confidences); err != nil {
			return model.QueueEntry{}, fmt.Errorf("failed to decode confidence scores for entry %d: %w", entry.ID, err)
		}
	}

	return entry, nil
}
