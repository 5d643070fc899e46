package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/propflow/veritas/internal/common"
	"github.com/propflow/veritas/internal/model"
	"github.com/propflow/veritas/internal/oracle"
	"github.com/propflow/veritas/internal/service"
)

// RoundResult is the outcome of one fan-out to all configured oracles.
type RoundResult struct {
	Results   map[string]model.ProviderResult
	AttemptID string
	Records   []model.OracleCallRecord
	Elapsed   time.Duration
}

// Dispatcher fans a formula out to every configured oracle concurrently,
// each call bounded by an independent timeout. Every call, including
// timeouts, produces a durable OracleCallRecord before the round's
// consensus is computed.
type Dispatcher struct {
	recorder service.MonitoringRecorder
	clients  []oracle.Client
	timeout  time.Duration
}

// NewDispatcher creates a dispatcher over a fixed provider list.
func NewDispatcher(clients []oracle.Client, recorder service.MonitoringRecorder, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		clients:  clients,
		recorder: recorder,
		timeout:  timeout,
	}
}

// Dispatch runs one consensus round. A round completes when all providers
// have responded or timed out; it never short-circuits on disagreement. An
// all-failed round is a valid zero-result round, not an error. The only
// error surfaced is a recorder persistence failure, which is fatal to the
// engine.
func (d *Dispatcher) Dispatch(ctx context.Context, formula model.Formula) (*RoundResult, error) {
	start := time.Now()
	round := &RoundResult{
		AttemptID: uuid.NewString(),
		Results:   make(map[string]model.ProviderResult, len(d.clients)),
		Records:   make([]model.OracleCallRecord, 0, len(d.clients)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, client := range d.clients {
		client := client
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, d.timeout)
			defer cancel()

			requestedAt := time.Now()
			eval, err := evaluateWithRetry(callCtx, client, formula)
			respondedAt := time.Now()

			record := model.OracleCallRecord{
				ID:          uuid.NewString(),
				AttemptID:   round.AttemptID,
				Provider:    client.Name(),
				RequestedAt: requestedAt,
				RespondedAt: respondedAt,
				Success:     err == nil,
				CostMetric:  eval.CostUnits,
			}

			var result model.ProviderResult
			if err != nil {
				category := oracle.Categorize(err)
				record.ErrorCategory = string(category)
				result.ErrorCategory = string(category)
				slog.Debug("oracle call failed",
					"provider", client.Name(),
					"formula_id", formula.ID,
					"category", category,
					"error", err)
			} else {
				v := eval.Value
				result.Value = &v
			}

			// Call records must be durable before the round's decision
			// is committed. A failed write halts the engine rather than
			// losing attempt evidence.
			if recordErr := d.recorder.RecordCall(ctx, &record); recordErr != nil {
				return fmt.Errorf("failed to persist oracle call record: %w", recordErr)
			}

			mu.Lock()
			round.Results[client.Name()] = result
			round.Records = append(round.Records, record)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	round.Elapsed = time.Since(start)
	return round, nil
}

// evaluateWithRetry retries transient transport failures within the call's
// timeout. Timeouts, auth, quota, and malformed responses are not retried;
// they resolve into the round as categorized failures.
func evaluateWithRetry(ctx context.Context, client oracle.Client, formula model.Formula) (oracle.Evaluation, error) {
	var eval oracle.Evaluation

	err := common.WithRetry(ctx, func() error {
		var callErr error
		eval, callErr = client.Evaluate(ctx, formula)
		if callErr == nil {
			return nil
		}
		if oracle.Categorize(callErr) != oracle.ErrTransport {
			return &common.RetryableError{Err: callErr, Retryable: false}
		}
		return callErr
	}, service.RetryOptions{
		MaxAttempts:  2,
		InitialDelay: 200 * time.Millisecond,
	})

	return eval, err
}
