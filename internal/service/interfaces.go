// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/propflow/veritas/internal/model"
)

// Storage defines the contract for our persistence layer. It is the sole
// owner of formulas, validation attempts, and oracle call records.
type Storage interface {
	// Formula operations
	SaveFormulas(ctx context.Context, formulas []model.Formula) error
	GetFormula(ctx context.Context, id string) (*model.Formula, error)
	GetPendingFormulas(ctx context.Context) ([]model.Formula, error)
	UpdateFormulaStatus(ctx context.Context, id string, status model.VerificationStatus) error

	// Attempt operations. RecordAttempt assigns the attempt number
	// (count of prior attempts + 1) and applies the formula's status
	// transition in the same transaction.
	RecordAttempt(ctx context.Context, attempt *model.ValidationAttempt, newStatus model.VerificationStatus) error
	CountAttempts(ctx context.Context, formulaID string) (int, error)
	GetAttempts(ctx context.Context, formulaID string) ([]model.ValidationAttempt, error)

	// Oracle call records
	MonitoringRecorder
	GetCallRecords(ctx context.Context, attemptID string) ([]model.OracleCallRecord, error)

	// Read views for the dashboard and template generator
	GetProviderPerformance(ctx context.Context, window time.Duration) ([]ProviderPerformance, error)
	GetQueueDepth(ctx context.Context) (map[model.PriorityTier]int, error)
	GetPageSummaries(ctx context.Context) ([]PageSummary, error)
	CountByStatus(ctx context.Context) (map[model.VerificationStatus]int, error)
	GetManualReviewItems(ctx context.Context) ([]ReviewItem, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// MonitoringRecorder persists oracle call records. Records must be durable
// before the owning attempt's decision is committed.
type MonitoringRecorder interface {
	RecordCall(ctx context.Context, record *model.OracleCallRecord) error
}

// ProviderPerformance aggregates oracle call outcomes for one provider over a
// trailing window.
type ProviderPerformance struct {
	Provider    string
	Calls       int
	Failures    int
	SuccessRate float64
	MeanLatency time.Duration
	TotalCost   float64
}

// PageSummary aggregates validation outcomes for one scraped page.
type PageSummary struct {
	PageID         string
	PageType       string
	Validated      int
	Pending        int
	ManualReview   int
	Rejected       int
	AvgConsensus   float64
	ScoredFormulas int
}

// ReviewItem is one formula awaiting human adjudication.
type ReviewItem struct {
	LastAttemptAt  time.Time
	Formula        model.Formula
	Recommendation string
	Attempts       int
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
