package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a fatal
// error.
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
				`CREATE TABLE IF NOT EXISTS formulas (
					id TEXT PRIMARY KEY,
					page_id TEXT NOT NULL,
					page_type TEXT NOT NULL,
					formula_type TEXT NOT NULL,
					expression TEXT NOT NULL,
					variables TEXT NOT NULL,
					expected_result REAL,
					source_snippet TEXT,
					verification_status TEXT NOT NULL DEFAULT 'pending',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_formulas_status ON formulas(verification_status)`,
				`CREATE INDEX idx_formulas_page ON formulas(page_id)`,

				`CREATE TABLE IF NOT EXISTS validation_attempts (
					id TEXT PRIMARY KEY,
					formula_id TEXT NOT NULL,
					attempt_number INTEGER NOT NULL,
					results TEXT NOT NULL,
					consensus_score REAL NOT NULL DEFAULT 0,
					consensus_achieved INTEGER NOT NULL DEFAULT 0,
					processing_time_ms INTEGER NOT NULL DEFAULT 0,
					recommendation TEXT,
					requires_manual_review INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (formula_id) REFERENCES formulas(id),
					UNIQUE (formula_id, attempt_number)
				)`,
				`CREATE INDEX idx_attempts_formula ON validation_attempts(formula_id)`,

				`CREATE TABLE IF NOT EXISTS oracle_call_records (
					id TEXT PRIMARY KEY,
					attempt_id TEXT NOT NULL,
					provider TEXT NOT NULL,
					requested_at DATETIME NOT NULL,
					responded_at DATETIME NOT NULL,
					success INTEGER NOT NULL,
					error_category TEXT,
					cost_metric REAL NOT NULL DEFAULT 0
				)`,
				`CREATE INDEX idx_calls_attempt ON oracle_call_records(attempt_id)`,
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
		Description: "Index call records by provider for performance views",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_calls_provider_time ON oracle_call_records(provider, requested_at)`)
			return err
		},
	},
	{
		Version:     3,
		Description: "Index formulas by page type for queue depth views",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_formulas_page_type ON formulas(page_type, verification_status)`)
			return err
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
