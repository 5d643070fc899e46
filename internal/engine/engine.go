package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/propflow/veritas/internal/common"
	"github.com/propflow/veritas/internal/model"
	"github.com/propflow/veritas/internal/oracle"
	"github.com/propflow/veritas/internal/service"
)

// Config holds configuration options for the validation engine.
type Config struct {
	Consensus       ConsensusConfig
	Workers         int
	RetryBudget     int
	ProviderTimeout time.Duration
	PollInterval    time.Duration
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Workers:         1,
		RetryBudget:     3,
		ProviderTimeout: 10 * time.Second,
		PollInterval:    250 * time.Millisecond,
		Consensus:       DefaultConsensusConfig(),
	}
}

// Engine orchestrates consensus validation: it pulls formulas from the
// priority queue, fans them out to the oracles, scores the round, and
// applies the retry scheduler's decision.
type Engine struct {
	store      service.Storage
	dispatcher *Dispatcher
	evaluator  *Evaluator
	scheduler  *RetryScheduler
	queue      *Queue
	workers    int
	poll       time.Duration
}

// New creates a validation engine over the configured oracle clients.
func New(store service.Storage, clients []oracle.Client, cfg Config) *Engine {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}

	return &Engine{
		store:      store,
		dispatcher: NewDispatcher(clients, store, cfg.ProviderTimeout),
		evaluator:  NewEvaluator(cfg.Consensus, len(clients)),
		scheduler:  NewRetryScheduler(store, cfg.RetryBudget),
		queue:      NewQueue(),
		workers:    workers,
		poll:       poll,
	}
}

// Run seeds the queue with pending formulas and processes it with the
// configured worker pool until the queue drains or the context is canceled.
// The only fatal errors are storage failures; per-formula failures resolve
// into durable statuses instead.
func (e *Engine) Run(ctx context.Context) error {
	pending, err := e.store.GetPendingFormulas(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pending formulas: %w", err)
	}

	for _, f := range pending {
		e.queue.Enqueue(f)
	}

	slog.Info("Starting validation engine",
		"pending", len(pending),
		"workers", e.workers,
		"retry_budget", e.scheduler.Budget())

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < e.workers; i++ {
		g.Go(func() error {
			return e.worker(gctx)
		})
	}

	return g.Wait()
}

// worker pulls formulas until the queue is idle or the context ends.
func (e *Engine) worker(ctx context.Context) error {
	for {
		formula, ok := e.queue.DequeueNext()
		if !ok {
			if e.queue.Idle() {
				return nil
			}
			// Another worker still holds an in-flight formula that
			// may be requeued; back off and poll again.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.poll):
			}
			continue
		}

		if err := e.processFormula(ctx, formula); err != nil {
			e.queue.Finish(formula.ID)
			return err
		}
	}
}

// processFormula runs one consensus round for a formula and applies the
// scheduler's decision.
func (e *Engine) processFormula(ctx context.Context, formula model.Formula) error {
	if err := checkExpression(formula); err != nil {
		// Structurally invalid formulas are rejected outright without
		// consuming a retry attempt or calling any oracle.
		slog.Warn("Rejecting invalid formula",
			"formula_id", formula.ID,
			"error", err)
		if updateErr := e.store.UpdateFormulaStatus(ctx, formula.ID, model.StatusRejected); updateErr != nil {
			return fmt.Errorf("failed to reject formula %s: %w", formula.ID, updateErr)
		}
		e.queue.Finish(formula.ID)
		return nil
	}

	round, err := e.dispatcher.Dispatch(ctx, formula)
	if err != nil {
		return err
	}

	verdict := e.evaluator.Evaluate(round.Results)

	attempt := &model.ValidationAttempt{
		ID:                round.AttemptID,
		FormulaID:         formula.ID,
		Results:           round.Results,
		ConsensusScore:    verdict.Score,
		ConsensusAchieved: verdict.Achieved,
		ProcessingTime:    round.Elapsed,
		Recommendation:    verdict.Recommendation,
		CreatedAt:         time.Now(),
	}

	decision, err := e.scheduler.OnRoundComplete(ctx, formula.ID, attempt)
	if err != nil {
		return err
	}

	slog.Info("Consensus round complete",
		"formula_id", formula.ID,
		"attempt", attempt.AttemptNumber,
		"score", verdict.Score,
		"achieved", verdict.Achieved,
		"decision", decision.String())

	e.queue.Finish(formula.ID)

	if decision == DecisionRequeue {
		formula.Status = model.StatusPending
		e.queue.Enqueue(formula)
	}

	return nil
}

// checkExpression verifies a formula is structurally evaluable: a non-empty
// expression whose referenced variables all have bindings.
func checkExpression(f model.Formula) error {
	if strings.TrimSpace(f.Expression) == "" {
		return fmt.Errorf("%w: empty expression", common.ErrInvalidExpression)
	}

	for _, name := range common.ExpressionIdentifiers(f.Expression) {
		if _, ok := f.Variables[name]; !ok {
			return fmt.Errorf("%w: missing binding for variable %q", common.ErrInvalidExpression, name)
		}
	}

	return nil
}
