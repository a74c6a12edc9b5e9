package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS product_queue (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					product_id TEXT UNIQUE NOT NULL,
					title TEXT NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL DEFAULT 'pending',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					processed_at DATETIME,
					assigned_collections TEXT,
					error_message TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE INDEX idx_product_queue_status ON product_queue(status)`,

				`CREATE TABLE IF NOT EXISTS collection_suggestions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					suggested_name TEXT UNIQUE NOT NULL,
					parent_collection TEXT NOT NULL DEFAULT '',
					product_ids TEXT NOT NULL DEFAULT '[]',
					product_count INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					status TEXT NOT NULL DEFAULT 'pending'
				)`,
				`CREATE INDEX idx_collection_suggestions_status ON collection_suggestions(status)`,

				`CREATE TABLE IF NOT EXISTS collection_hierarchy (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					collection_id TEXT UNIQUE NOT NULL,
					handle TEXT NOT NULL DEFAULT '',
					title TEXT NOT NULL DEFAULT '',
					level INTEGER NOT NULL DEFAULT 1,
					parent_id TEXT NOT NULL DEFAULT '',
					full_path TEXT NOT NULL DEFAULT '',
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_collection_hierarchy_level ON collection_hierarchy(level)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add retry tracking and apply flag to the product queue",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`ALTER TABLE product_queue ADD COLUMN retry_count INTEGER NOT NULL DEFAULT 0`,
				`ALTER TABLE product_queue ADD COLUMN applied BOOLEAN NOT NULL DEFAULT 0`,
				`ALTER TABLE product_queue ADD COLUMN confidence_scores TEXT`,
				`CREATE INDEX idx_product_queue_applied ON product_queue(status, applied)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Track assignment volume per collection",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`ALTER TABLE collection_hierarchy ADD COLUMN product_count INTEGER NOT NULL DEFAULT 0`,
				`CREATE INDEX idx_collection_suggestions_count ON collection_suggestions(product_count)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
