package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propflow/veritas/internal/model"
	"github.com/propflow/veritas/internal/oracle"
	"github.com/propflow/veritas/internal/storage"
)

func testStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := storage.NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Consensus.Epsilon = 1
	cfg.ProviderTimeout = time.Second
	cfg.PollInterval = 5 * time.Millisecond
	return cfg
}

func TestEngine_ValidatesAgreedFormula(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	f := pendingFormula("f-1", "income_statement")
	require.NoError(t, store.SaveFormulas(ctx, []model.Formula{f}))

	clients := []oracle.Client{
		NewStaticOracle("a", 3),
		NewStaticOracle("b", 3),
		NewStaticOracle("c", 3),
	}

	eng := New(store, clients, testConfig())
	require.NoError(t, eng.Run(ctx))

	got, err := store.GetFormula(ctx, "f-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusValidated, got.Status)

	attempts, err := store.GetAttempts(ctx, "f-1")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, 1, attempts[0].AttemptNumber)
	assert.True(t, attempts[0].ConsensusAchieved)
	assert.InDelta(t, 1.0, attempts[0].ConsensusScore, 1e-9)

	records, err := store.GetCallRecords(ctx, attempts[0].ID)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestEngine_EscalatesAfterRetryBudget(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	f := pendingFormula("f-1", "income_statement")
	require.NoError(t, store.SaveFormulas(ctx, []model.Formula{f}))

	// Two providers that never agree.
	clients := []oracle.Client{
		NewStaticOracle("a", 100),
		NewStaticOracle("b", 50),
	}

	eng := New(store, clients, testConfig())
	require.NoError(t, eng.Run(ctx))

	got, err := store.GetFormula(ctx, "f-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusManualReview, got.Status)

	attempts, err := store.GetAttempts(ctx, "f-1")
	require.NoError(t, err)
	require.Len(t, attempts, 3, "a 4th attempt must never be created")

	for i, attempt := range attempts {
		assert.Equal(t, i+1, attempt.AttemptNumber)
		assert.False(t, attempt.ConsensusAchieved)
	}

	final := attempts[2]
	assert.True(t, final.RequiresManualReview)
	assert.NotEmpty(t, final.Recommendation)
}

func TestEngine_AllTimeoutsStillRecordEveryCall(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	f := pendingFormula("f-1", "income_statement")
	require.NoError(t, store.SaveFormulas(ctx, []model.Formula{f}))

	clients := []oracle.Client{
		NewStaticOracle("a", 1).WithDelay(time.Second),
		NewStaticOracle("b", 1).WithDelay(time.Second),
		NewStaticOracle("c", 1).WithDelay(time.Second),
		NewStaticOracle("d", 1).WithDelay(time.Second),
	}

	cfg := testConfig()
	cfg.ProviderTimeout = 10 * time.Millisecond

	eng := New(store, clients, cfg)
	require.NoError(t, eng.Run(ctx))

	attempts, err := store.GetAttempts(ctx, "f-1")
	require.NoError(t, err)
	require.Len(t, attempts, 3)

	for _, attempt := range attempts {
		assert.False(t, attempt.ConsensusAchieved)
		assert.Zero(t, attempt.ConsensusScore)

		records, recErr := store.GetCallRecords(ctx, attempt.ID)
		require.NoError(t, recErr)
		require.Len(t, records, 4)
		for _, record := range records {
			assert.False(t, record.Success)
		}
	}
}

func TestEngine_RejectsInvalidExpression(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	f := pendingFormula("f-bad", "income_statement")
	f.Expression = "occupied_units / total_units"
	f.Variables = map[string]float64{"occupied_units": 95}
	require.NoError(t, store.SaveFormulas(ctx, []model.Formula{f}))

	provider := NewStaticOracle("a", 1)
	eng := New(store, []oracle.Client{provider, NewStaticOracle("b", 1)}, testConfig())
	require.NoError(t, eng.Run(ctx))

	got, err := store.GetFormula(ctx, "f-bad")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, got.Status)

	// Rejection happens before dispatch: no attempts, no oracle calls.
	attempts, err := store.GetAttempts(ctx, "f-bad")
	require.NoError(t, err)
	assert.Empty(t, attempts)
	assert.Zero(t, provider.Calls())
}

func TestEngine_MultipleWorkersDrainQueue(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	var formulas []model.Formula
	for _, id := range []string{"f-1", "f-2", "f-3", "f-4", "f-5", "f-6"} {
		formulas = append(formulas, pendingFormula(id, "rent_roll_report"))
	}
	require.NoError(t, store.SaveFormulas(ctx, formulas))

	clients := []oracle.Client{
		NewStaticOracle("a", 3),
		NewStaticOracle("b", 3),
		NewStaticOracle("c", 3),
	}

	cfg := testConfig()
	cfg.Workers = 4

	eng := New(store, clients, cfg)
	require.NoError(t, eng.Run(ctx))

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(formulas), counts[model.StatusValidated])

	for _, f := range formulas {
		attempts, attErr := store.GetAttempts(ctx, f.ID)
		require.NoError(t, attErr)
		assert.Len(t, attempts, 1, "formula %s should have exactly one attempt", f.ID)
	}
}

func TestEngine_MixedPrioritiesAllResolve(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	require.NoError(t, store.SaveFormulas(ctx, []model.Formula{
		pendingFormula("f-low", "misc_page"),
		pendingFormula("f-high", "delinquency_report"),
		pendingFormula("f-med", "property_dashboard"),
	}))

	clients := []oracle.Client{
		NewStaticOracle("a", 3),
		NewStaticOracle("b", 3),
	}

	eng := New(store, clients, testConfig())
	require.NoError(t, eng.Run(ctx))

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[model.StatusValidated])
	assert.Zero(t, counts[model.StatusPending])
}
