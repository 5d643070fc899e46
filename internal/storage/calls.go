package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/propflow/veritas/internal/model"
)

// RecordCall durably persists one oracle call record. The dispatcher calls
// this as each provider resolves, before any consensus decision is
// committed, so a crash mid-round can orphan call records but never leave a
// decision without evidence.
func (s *SQLiteStorage) RecordCall(ctx context.Context, record *model.OracleCallRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("%w: record", ErrNilParameter)
	}
	if err := validateString(record.ID, "record.ID"); err != nil {
		return err
	}
	if err := validateString(record.AttemptID, "record.AttemptID"); err != nil {
		return err
	}
	if err := validateString(record.Provider, "record.Provider"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oracle_call_records (
			id, attempt_id, provider, requested_at, responded_at,
			success, error_category, cost_metric
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		record.AttemptID,
		record.Provider,
		record.RequestedAt,
		record.RespondedAt,
		record.Success,
		record.ErrorCategory,
		record.CostMetric,
	)
	if err != nil {
		return fmt.Errorf("failed to save call record: %w", err)
	}

	return nil
}

// GetCallRecords returns all call records for one attempt. Order among
// providers is not significant; records are captured in parallel.
func (s *SQLiteStorage) GetCallRecords(ctx context.Context, attemptID string) ([]model.OracleCallRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(attemptID, "attemptID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, attempt_id, provider, requested_at, responded_at,
		       success, error_category, cost_metric
		FROM oracle_call_records
		WHERE attempt_id = ?
		ORDER BY provider
	`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to query call records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.OracleCallRecord
	for rows.Next() {
		var r model.OracleCallRecord
		var category sql.NullString

		err = rows.Scan(
			&r.ID,
			&r.AttemptID,
			&r.Provider,
			&r.RequestedAt,
			&r.RespondedAt,
			&r.Success,
			&category,
			&r.CostMetric,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call record: %w", err)
		}
		r.ErrorCategory = category.String

		records = append(records, r)
	}

	return records, rows.Err()
}
