package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/propflow/veritas/internal/model"
)

// RecordAttempt appends a validation attempt and applies the formula's
// status transition in one transaction. The attempt number is computed from
// the persisted history (count of prior rows + 1), never from an in-memory
// counter, and is written back onto the attempt. Attempts are append-only.
func (s *SQLiteStorage) RecordAttempt(ctx context.Context, attempt *model.ValidationAttempt, newStatus model.VerificationStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAttempt(attempt); err != nil {
		return err
	}
	if err := validateStatus(newStatus); err != nil {
		return err
	}

	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now()
	}

	results, err := json.Marshal(attempt.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal attempt results: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prior int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM validation_attempts WHERE formula_id = ?
	`, attempt.FormulaID).Scan(&prior)
	if err != nil {
		return fmt.Errorf("failed to count prior attempts: %w", err)
	}
	attempt.AttemptNumber = prior + 1

	_, err = tx.ExecContext(ctx, `
		INSERT INTO validation_attempts (
			id, formula_id, attempt_number, results, consensus_score,
			consensus_achieved, processing_time_ms, recommendation,
			requires_manual_review, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		attempt.ID,
		attempt.FormulaID,
		attempt.AttemptNumber,
		string(results),
		attempt.ConsensusScore,
		attempt.ConsensusAchieved,
		attempt.ProcessingTime.Milliseconds(),
		attempt.Recommendation,
		attempt.RequiresManualReview,
		attempt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save attempt: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE formulas SET verification_status = ? WHERE id = ?
	`, string(newStatus), attempt.FormulaID)
	if err != nil {
		return fmt.Errorf("failed to update formula status: %w", err)
	}

	return tx.Commit()
}

// CountAttempts returns how many attempts have been persisted for a formula.
func (s *SQLiteStorage) CountAttempts(ctx context.Context, formulaID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(formulaID, "formulaID"); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM validation_attempts WHERE formula_id = ?
	`, formulaID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return count, nil
}

// GetAttempts returns a formula's attempt history in attempt order.
func (s *SQLiteStorage) GetAttempts(ctx context.Context, formulaID string) ([]model.ValidationAttempt, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(formulaID, "formulaID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, formula_id, attempt_number, results, consensus_score,
		       consensus_achieved, processing_time_ms, recommendation,
		       requires_manual_review, created_at
		FROM validation_attempts
		WHERE formula_id = ?
		ORDER BY attempt_number
	`, formulaID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var attempts []model.ValidationAttempt
	for rows.Next() {
		var a model.ValidationAttempt
		var results string
		var processingMs int64
		var recommendation sql.NullString

		err = rows.Scan(
			&a.ID,
			&a.FormulaID,
			&a.AttemptNumber,
			&results,
			&a.ConsensusScore,
			&a.ConsensusAchieved,
			&processingMs,
			&recommendation,
			&a.RequiresManualReview,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}

		if err = json.Unmarshal([]byte(results), &a.Results); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attempt results: %w", err)
		}
		a.ProcessingTime = time.Duration(processingMs) * time.Millisecond
		a.Recommendation = recommendation.String

		attempts = append(attempts, a)
	}

	return attempts, rows.Err()
}
