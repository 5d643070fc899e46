package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/propflow/veritas/internal/model"
	"github.com/propflow/veritas/internal/service"
)

// Decision is the retry scheduler's verdict for one completed round.
type Decision int

// Scheduler decisions.
const (
	// DecisionNone means the formula was already terminal and the round
	// was discarded without creating an attempt.
	DecisionNone Decision = iota
	DecisionValidated
	DecisionRequeue
	DecisionEscalate
)

func (d Decision) String() string {
	switch d {
	case DecisionValidated:
		return "validated"
	case DecisionRequeue:
		return "requeue"
	case DecisionEscalate:
		return "escalate"
	default:
		return "none"
	}
}

// RetryScheduler applies the retry budget to completed consensus rounds.
// The budget is enforced by counting persisted attempt rows, so a process
// restart cannot reset it.
type RetryScheduler struct {
	store  service.Storage
	budget int
}

// NewRetryScheduler creates a scheduler with the given retry budget.
func NewRetryScheduler(store service.Storage, budget int) *RetryScheduler {
	if budget <= 0 {
		budget = 3
	}
	return &RetryScheduler{store: store, budget: budget}
}

// Budget returns the configured hard ceiling on attempts per formula.
func (s *RetryScheduler) Budget() int {
	return s.budget
}

// OnRoundComplete persists the attempt and decides the formula's fate:
// validated, requeued under budget, or escalated to manual review. Running
// it against an already terminal formula is a no-op.
func (s *RetryScheduler) OnRoundComplete(ctx context.Context, formulaID string, attempt *model.ValidationAttempt) (Decision, error) {
	formula, err := s.store.GetFormula(ctx, formulaID)
	if err != nil {
		return DecisionNone, fmt.Errorf("failed to load formula %s: %w", formulaID, err)
	}

	if formula.Status.IsTerminal() {
		slog.Debug("discarding round for terminal formula",
			"formula_id", formulaID,
			"status", formula.Status)
		return DecisionNone, nil
	}

	prior, err := s.store.CountAttempts(ctx, formulaID)
	if err != nil {
		return DecisionNone, fmt.Errorf("failed to count attempts for %s: %w", formulaID, err)
	}

	switch {
	case attempt.ConsensusAchieved:
		if err := s.store.RecordAttempt(ctx, attempt, model.StatusValidated); err != nil {
			return DecisionNone, err
		}
		return DecisionValidated, nil

	case prior+1 < s.budget:
		if err := s.store.RecordAttempt(ctx, attempt, model.StatusPending); err != nil {
			return DecisionNone, err
		}
		return DecisionRequeue, nil

	default:
		// Budget exhausted: always resolved into manual review, never
		// dropped or retried further.
		attempt.RequiresManualReview = true
		if attempt.Recommendation == "" {
			attempt.Recommendation = fmt.Sprintf("no consensus after %d attempts; manual evaluation required", s.budget)
		}
		if err := s.store.RecordAttempt(ctx, attempt, model.StatusManualReview); err != nil {
			return DecisionNone, err
		}
		return DecisionEscalate, nil
	}
}
