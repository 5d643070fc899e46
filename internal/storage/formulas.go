package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/propflow/veritas/internal/common"
	"github.com/propflow/veritas/internal/model"
)

// SaveFormulas persists a batch of extracted formulas. Formulas are never
// deleted or overwritten; a re-crawl supersedes by inserting new rows, so an
// existing ID is left untouched.
func (s *SQLiteStorage) SaveFormulas(ctx context.Context, formulas []model.Formula) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateFormulas(formulas); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range formulas {
		f := &formulas[i]
		if f.Status == "" {
			f.Status = model.StatusPending
		}

		variables, marshalErr := json.Marshal(f.Variables)
		if marshalErr != nil {
			return fmt.Errorf("failed to marshal variables for formula %s: %w", f.ID, marshalErr)
		}

		var expected any
		if f.ExpectedResult != nil {
			expected = *f.ExpectedResult
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO formulas (
				id, page_id, page_type, formula_type, expression,
				variables, expected_result, source_snippet, verification_status
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`,
			f.ID,
			f.PageID,
			f.PageType,
			string(f.Kind),
			f.Expression,
			string(variables),
			expected,
			f.SourceSnippet,
			string(f.Status),
		)
		if err != nil {
			return fmt.Errorf("failed to save formula %s: %w", f.ID, err)
		}
	}

	return tx.Commit()
}

// GetFormula fetches one formula by ID.
func (s *SQLiteStorage) GetFormula(ctx context.Context, id string) (*model.Formula, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, page_id, page_type, formula_type, expression,
		       variables, expected_result, source_snippet, verification_status, created_at
		FROM formulas
		WHERE id = ?
	`, id)

	f, err := scanFormula(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("formula %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get formula %s: %w", id, err)
	}
	return f, nil
}

// GetPendingFormulas returns all pending formulas in priority order: tier
// first (derived from page type), enqueue time within tier.
func (s *SQLiteStorage) GetPendingFormulas(ctx context.Context) ([]model.Formula, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, page_id, page_type, formula_type, expression,
		       variables, expected_result, source_snippet, verification_status, created_at
		FROM formulas
		WHERE verification_status = 'pending'
		ORDER BY
			CASE
				WHEN page_type IN ('rent_roll_report', 'income_statement', 'delinquency_report') THEN 0
				WHEN page_type IN ('account_totals', 'property_dashboard') THEN 1
				ELSE 2
			END,
			created_at,
			id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending formulas: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var formulas []model.Formula
	for rows.Next() {
		f, scanErr := scanFormula(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan formula: %w", scanErr)
		}
		formulas = append(formulas, *f)
	}

	return formulas, rows.Err()
}

// UpdateFormulaStatus sets a formula's verification status. The update is
// idempotent: re-applying the same status is a no-op.
func (s *SQLiteStorage) UpdateFormulaStatus(ctx context.Context, id string, status model.VerificationStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if err := validateStatus(status); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE formulas SET verification_status = ? WHERE id = ?
	`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update formula status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("formula %s: %w", id, common.ErrNotFound)
	}

	return nil
}

func unmarshalVariables(raw string, f *model.Formula) error {
	if err := json.Unmarshal([]byte(raw), &f.Variables); err != nil {
		return fmt.Errorf("failed to unmarshal variables: %w", err)
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFormula(row rowScanner) (*model.Formula, error) {
	var f model.Formula
	var kind, status, variables string
	var expected sql.NullFloat64
	var snippet sql.NullString

	err := row.Scan(
		&f.ID,
		&f.PageID,
		&f.PageType,
		&kind,
		&f.Expression,
		&variables,
		&expected,
		&snippet,
		&status,
		&f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(variables), &f.Variables); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
	}

	f.Kind = model.FormulaKind(kind)
	f.Status = model.VerificationStatus(status)
	f.SourceSnippet = snippet.String
	if expected.Valid {
		v := expected.Float64
		f.ExpectedResult = &v
	}

	return &f, nil
}
