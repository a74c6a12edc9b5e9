package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ecomstack/shelfsort/internal/model"
)

// ReplaceHierarchy deletes the entire hierarchy snapshot and rebuilds it
// from the given nodes in a single transaction. Nodes carry no identity
// across rebuilds.
func (s *SQLiteStorage) ReplaceHierarchy(ctx context.Context, nodes []model.CategoryNode) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM collection_hierarchy`); err != nil {
		return fmt.Errorf("failed to clear hierarchy: %w", err)
	}

	insertQuery := `
		INSERT INTO collection_hierarchy
			(collection_id, handle, title, level, parent_id, full_path, updated_at, product_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)`

	stmt, err := tx.PrepareContext(ctx, insertQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare hierarchy insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, node := range nodes {
		if _, err := stmt.ExecContext(ctx,
			node.CollectionID, node.Handle, node.Title, node.Level,
			node.ParentID, node.FullPath, node.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert hierarchy node %s: %w", node.CollectionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit hierarchy rebuild: %w", err)
	}

	slog.Info("rebuilt collection hierarchy", "nodes", len(nodes))
	return nil
}

// GetNodesByLevel returns all hierarchy nodes at the given level in
// insertion order.
func (s *SQLiteStorage) GetNodesByLevel(ctx context.Context, level int) ([]model.CategoryNode, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if level < 1 || level > model.MaxHierarchyDepth {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLevel, level)
	}

	query := `
		SELECT id, collection_id, handle, title, level, parent_id, full_path, updated_at, product_count
		FROM collection_hierarchy
		WHERE level = ?
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, level)
	if err != nil {
		return nil, fmt.Errorf("failed to query hierarchy: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var nodes []model.CategoryNode
	for rows.Next() {
		var node model.CategoryNode
		if err := rows.Scan(
			&node.ID, &node.CollectionID, &node.Handle, &node.Title, &node.Level,
			&node.ParentID, &node.FullPath, &node.UpdatedAt, &node.ProductCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan hierarchy node: %w", err)
		}
		nodes = append(nodes, node)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hierarchy nodes: %w", err)
	}

	return nodes, nil
}

// GetLevelMap returns collection id to hierarchy level for every node in
// the current snapshot.
func (s *SQLiteStorage) GetLevelMap(ctx context.Context) (map[string]int, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT collection_id, level FROM collection_hierarchy`)
	if err != nil {
		return nil, fmt.Errorf("failed to query level map: %w", err)
	}
	defer func() { _ = rows.Close() }()

	levelMap := make(map[string]int)
	for rows.Next() {
		var id string
		var level int
		if err := rows.Scan(&id, &level); err != nil {
			return nil, fmt.Errorf("failed to scan level map row: %w", err)
		}
		levelMap[id] = level
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating level map: %w", err)
	}

	return levelMap, nil
}

// CountNodesByLevel returns the number of nodes at each hierarchy level.
func (s *SQLiteStorage) CountNodesByLevel(ctx context.Context) (map[int]int, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT level, COUNT(*) FROM collection_hierarchy GROUP BY level`)
	if err != nil {
		return nil, fmt.Errorf("failed to count hierarchy nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[int]int)
	for rows.Next() {
		var level, count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("failed to scan hierarchy count: %w", err)
		}
		counts[level] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hierarchy counts: %w", err)
	}

	return counts, nil
}

// IncrementProductCounts bumps the running assignment counter for each of
// the given collections.
func (s *SQLiteStorage) IncrementProductCounts(ctx context.Context, collectionIDs []string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(collectionIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `UPDATE collection_hierarchy SET product_count = product_count + 1 WHERE collection_id = ?`
	for _, id := range collectionIDs {
		if _, err := tx.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("failed to increment product count for %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit product count update: %w", err)
	}

	return nil
}
