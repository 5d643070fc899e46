package engine

import (
	"context"
	"sync"
	"time"

	"github.com/propflow/veritas/internal/model"
	"github.com/propflow/veritas/internal/oracle"
)

// MockOracle is a test implementation of the oracle.Client interface with a
// scriptable response function.
type MockOracle struct {
	respond func(model.Formula) (oracle.Evaluation, error)
	name    string
	delay   time.Duration
	calls   int
	mu      sync.Mutex
}

// NewMockOracle creates a mock provider with the given response function.
func NewMockOracle(name string, respond func(model.Formula) (oracle.Evaluation, error)) *MockOracle {
	return &MockOracle{name: name, respond: respond}
}

// NewStaticOracle creates a mock provider that always returns value.
func NewStaticOracle(name string, value float64) *MockOracle {
	return NewMockOracle(name, func(model.Formula) (oracle.Evaluation, error) {
		return oracle.Evaluation{Value: value, CostUnits: 10}, nil
	})
}

// NewFailingOracle creates a mock provider that always fails with category.
func NewFailingOracle(name string, category oracle.ErrorCategory) *MockOracle {
	return NewMockOracle(name, func(model.Formula) (oracle.Evaluation, error) {
		return oracle.Evaluation{}, oracle.NewCallError(category, context.DeadlineExceeded)
	})
}

// WithDelay makes the mock block for d (or until the call context ends)
// before responding.
func (m *MockOracle) WithDelay(d time.Duration) *MockOracle {
	m.delay = d
	return m
}

func (m *MockOracle) Name() string {
	return m.name
}

// Evaluate returns the scripted response, honoring context cancellation
// during any configured delay.
func (m *MockOracle) Evaluate(ctx context.Context, formula model.Formula) (oracle.Evaluation, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return oracle.Evaluation{}, oracle.NewCallError(oracle.ErrTimeout, ctx.Err())
		case <-time.After(m.delay):
		}
	}

	return m.respond(formula)
}

// Calls returns how many times Evaluate was invoked.
func (m *MockOracle) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
