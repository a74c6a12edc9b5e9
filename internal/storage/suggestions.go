package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ecomstack/shelfsort/internal/common"
	"github.com/ecomstack/shelfsort/internal/model"
)

const suggestionColumns = `id, suggested_name, parent_collection, product_ids, product_count,
	created_at, status`

// RecordSuggestion merges one more piece of evidence into the ledger for
// the named collection. Lookup is a case-sensitive exact match on the
// suggested name; repeated calls with the same (name, productID) pair are
// idempotent. productID may be empty when the suggestion arrives before
// the owning product is known.
func (s *SQLiteStorage) RecordSuggestion(ctx context.Context, name, parentCollection, productID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(name, "name"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`SELECT %s FROM collection_suggestions WHERE suggested_name = ?`, suggestionColumns)

	existing, err := scanSuggestion(tx.QueryRowContext(ctx, query, name))
	switch {
	case err == nil:
		if added := existing.AddProduct(productID); !added {
			return tx.Commit()
		}

		idsJSON, marshalErr := json.Marshal(existing.ProductIDs)
		if marshalErr != nil {
			return fmt.Errorf("failed to encode product ids: %w", marshalErr)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE collection_suggestions SET product_ids = ?, product_count = ? WHERE id = ?`,
			string(idsJSON), existing.ProductCount, existing.ID,
		); err != nil {
			return fmt.Errorf("failed to update suggestion %q: %w", name, err)
		}

	case errors.Is(err, sql.ErrNoRows):
		record := model.SuggestionRecord{
			SuggestedName:    name,
			ParentCollection: parentCollection,
			Status:           model.SuggestionPending,
			CreatedAt:        time.Now().UTC(),
		}
		record.AddProduct(productID)

		idsJSON, marshalErr := json.Marshal(record.ProductIDs)
		if marshalErr != nil {
			return fmt.Errorf("failed to encode product ids: %w", marshalErr)
		}
		if record.ProductIDs == nil {
			idsJSON = []byte("[]")
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO collection_suggestions
				(suggested_name, parent_collection, product_ids, product_count, created_at, status)
			VALUES (?, ?, ?, ?, ?, ?)`,
			record.SuggestedName, record.ParentCollection, string(idsJSON),
			record.ProductCount, record.CreatedAt, record.Status,
		); err != nil {
			return fmt.Errorf("failed to insert suggestion %q: %w", name, err)
		}

		slog.Info("new collection suggested",
			"name", name,
			"parent", parentCollection)

	default:
		return fmt.Errorf("failed to look up suggestion %q: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit suggestion %q: %w", name, err)
	}

	return nil
}

// GetSuggestionByName returns the ledger record for the given suggested
// name, or common.ErrNotFound.
func (s *SQLiteStorage) GetSuggestionByName(ctx context.Context, name string) (*model.SuggestionRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM collection_suggestions WHERE suggested_name = ?`, suggestionColumns)

	record, err := scanSuggestion(s.db.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("suggestion %q: %w", name, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestion %q: %w", name, err)
	}

	return &record, nil
}

// ListSuggestions returns all ledger records, most-supported first.
func (s *SQLiteStorage) ListSuggestions(ctx context.Context) ([]model.SuggestionRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM collection_suggestions ORDER BY product_count DESC, id`, suggestionColumns)
	return s.querySuggestions(ctx, query)
}

// GetReadySuggestions returns pending suggestions supported by at least
// minProducts distinct products.
func (s *SQLiteStorage) GetReadySuggestions(ctx context.Context, minProducts int) ([]model.SuggestionRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM collection_suggestions
		WHERE status = ? AND product_count >= ?
		ORDER BY product_count DESC, id`, suggestionColumns)

	return s.querySuggestions(ctx, query, model.SuggestionPending, minProducts)
}

// UpdateSuggestionStatus sets the terminal review state of a suggestion.
func (s *SQLiteStorage) UpdateSuggestionStatus(ctx context.Context, id int64, status model.SuggestionStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE collection_suggestions SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update suggestion %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read suggestion update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("suggestion %d: %w", id, common.ErrNotFound)
	}

	return nil
}

func (s *SQLiteStorage) querySuggestions(ctx context.Context, query string, args ...any) ([]model.SuggestionRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.SuggestionRecord
	for rows.Next() {
		record, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating suggestions: %w", err)
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSuggestion(row rowScanner) (model.SuggestionRecord, error) {
	var record model.SuggestionRecord
	var idsJSON sql.NullString

	if err := row.Scan(
		&record.ID, &record.SuggestedName, &record.ParentCollection, &idsJSON,
		&record.ProductCount, &record.CreatedAt, &record.Status,
	); err != nil {
		return model.SuggestionRecord{}, err
	}

	if idsJSON.Valid && idsJSON.String != "" {
		if err := json.Unmarshal([]byte(idsJSON.String), &record.ProductIDs); err != nil {
			return model.SuggestionRecord{}, fmt.Errorf("failed to decode product ids for suggestion %d: %w", record.ID, err)
		}
	}

	return record, nil
}
