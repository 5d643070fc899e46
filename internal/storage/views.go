package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/propflow/veritas/internal/model"
	"github.com/propflow/veritas/internal/service"
)

// GetProviderPerformance aggregates oracle call outcomes per provider over a
// trailing window.
func (s *SQLiteStorage) GetProviderPerformance(ctx context.Context, window time.Duration) ([]service.ProviderPerformance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if window <= 0 {
		window = 24 * time.Hour
	}

	since := time.Now().Add(-window)
	rows, err := s.db.QueryContext(ctx, `
		SELECT provider,
		       COUNT(*) AS calls,
		       SUM(CASE WHEN success THEN 0 ELSE 1 END) AS failures,
		       AVG((julianday(responded_at) - julianday(requested_at)) * 86400000.0) AS mean_latency_ms,
		       SUM(cost_metric) AS total_cost
		FROM oracle_call_records
		WHERE requested_at >= ?
		GROUP BY provider
		ORDER BY provider
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query provider performance: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var perf []service.ProviderPerformance
	for rows.Next() {
		var p service.ProviderPerformance
		var meanLatencyMs sql.NullFloat64

		if err := rows.Scan(&p.Provider, &p.Calls, &p.Failures, &meanLatencyMs, &p.TotalCost); err != nil {
			return nil, fmt.Errorf("failed to scan provider performance: %w", err)
		}

		if p.Calls > 0 {
			p.SuccessRate = float64(p.Calls-p.Failures) / float64(p.Calls)
		}
		if meanLatencyMs.Valid {
			p.MeanLatency = time.Duration(meanLatencyMs.Float64) * time.Millisecond
		}

		perf = append(perf, p)
	}

	return perf, rows.Err()
}

// GetQueueDepth counts pending formulas per priority tier.
func (s *SQLiteStorage) GetQueueDepth(ctx context.Context) (map[model.PriorityTier]int, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT page_type, COUNT(*)
		FROM formulas
		WHERE verification_status = 'pending'
		GROUP BY page_type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue depth: %w", err)
	}
	defer func() { _ = rows.Close() }()

	depth := make(map[model.PriorityTier]int, 3)
	for rows.Next() {
		var pageType string
		var count int
		if err := rows.Scan(&pageType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan queue depth: %w", err)
		}
		depth[model.TierForPageType(pageType)] += count
	}

	return depth, rows.Err()
}

// CountByStatus counts formulas per verification status.
func (s *SQLiteStorage) CountByStatus(ctx context.Context) (map[model.VerificationStatus]int, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT verification_status, COUNT(*)
		FROM formulas
		GROUP BY verification_status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query status counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[model.VerificationStatus]int, 4)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[model.VerificationStatus(status)] = count
	}

	return counts, rows.Err()
}

// GetPageSummaries aggregates validation outcomes per page: counts by status
// and the average consensus score over scored attempts.
func (s *SQLiteStorage) GetPageSummaries(ctx context.Context) ([]service.PageSummary, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.page_id,
		       f.page_type,
		       SUM(CASE WHEN f.verification_status = 'validated' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN f.verification_status = 'pending' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN f.verification_status = 'manual_review' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN f.verification_status = 'rejected' THEN 1 ELSE 0 END),
		       COALESCE(AVG(a.consensus_score), 0),
		       COUNT(a.id)
		FROM formulas f
		LEFT JOIN validation_attempts a ON a.formula_id = f.id
		GROUP BY f.page_id, f.page_type
		ORDER BY f.page_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query page summaries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []service.PageSummary
	for rows.Next() {
		var p service.PageSummary
		err = rows.Scan(
			&p.PageID,
			&p.PageType,
			&p.Validated,
			&p.Pending,
			&p.ManualReview,
			&p.Rejected,
			&p.AvgConsensus,
			&p.ScoredFormulas,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan page summary: %w", err)
		}
		summaries = append(summaries, p)
	}

	return summaries, rows.Err()
}

// GetManualReviewItems lists formulas awaiting human adjudication with the
// final attempt's recommendation.
func (s *SQLiteStorage) GetManualReviewItems(ctx context.Context) ([]service.ReviewItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.page_id, f.page_type, f.formula_type, f.expression,
		       f.variables, f.expected_result, f.source_snippet, f.verification_status, f.created_at,
		       COALESCE(a.recommendation, ''),
		       COALESCE(a.attempt_number, 0),
		       COALESCE(a.created_at, f.created_at)
		FROM formulas f
		LEFT JOIN validation_attempts a ON a.formula_id = f.id
			AND a.attempt_number = (
				SELECT MAX(attempt_number) FROM validation_attempts WHERE formula_id = f.id
			)
		WHERE f.verification_status = 'manual_review'
		ORDER BY f.created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query manual review items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []service.ReviewItem
	for rows.Next() {
		var item service.ReviewItem
		var f model.Formula
		var kind, status, variables string
		var expected sql.NullFloat64
		var snippet sql.NullString

		err = rows.Scan(
			&f.ID, &f.PageID, &f.PageType, &kind, &f.Expression,
			&variables, &expected, &snippet, &status, &f.CreatedAt,
			&item.Recommendation,
			&item.Attempts,
			&item.LastAttemptAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review item: %w", err)
		}

		f.Kind = model.FormulaKind(kind)
		f.Status = model.VerificationStatus(status)
		f.SourceSnippet = snippet.String
		if expected.Valid {
			v := expected.Float64
			f.ExpectedResult = &v
		}
		// Variables stay JSON-encoded in the row; decode for the caller.
		if unmarshalErr := unmarshalVariables(variables, &f); unmarshalErr != nil {
			return nil, unmarshalErr
		}

		item.Formula = f
		items = append(items, item)
	}

	return items, rows.Err()
}
