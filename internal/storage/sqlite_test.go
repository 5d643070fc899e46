package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/propflow/veritas/internal/common"
	"github.com/propflow/veritas/internal/model"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

// Helper function to create test formulas.
func createTestFormulas(count int, pageType string) []model.Formula {
	formulas := make([]model.Formula, count)
	for i := 0; i < count; i++ {
		formulas[i] = model.Formula{
			ID:         fmt.Sprintf("formula-%s-%d", pageType, i+1),
			PageID:     fmt.Sprintf("page-%d", (i%2)+1),
			PageType:   pageType,
			Kind:       model.KindSum,
			Expression: "unit_rent_a + unit_rent_b",
			Variables:  map[string]float64{"unit_rent_a": 1200, "unit_rent_b": 1350},
			Status:     model.StatusPending,
		}
	}
	return formulas
}

func TestSQLiteStorage_SaveAndGetFormulas(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	formulas := createTestFormulas(3, "income_statement")
	if err := store.SaveFormulas(ctx, formulas); err != nil {
		t.Fatalf("Failed to save formulas: %v", err)
	}

	got, err := store.GetFormula(ctx, formulas[0].ID)
	if err != nil {
		t.Fatalf("Failed to get formula: %v", err)
	}
	if got.Expression != formulas[0].Expression {
		t.Errorf("Expression = %q, want %q", got.Expression, formulas[0].Expression)
	}
	if got.Status != model.StatusPending {
		t.Errorf("Status = %q, want pending", got.Status)
	}
	if len(got.Variables) != 2 {
		t.Errorf("Variables count = %d, want 2", len(got.Variables))
	}
	if got.Variables["unit_rent_a"] != 1200 {
		t.Errorf("Variable unit_rent_a = %v, want 1200", got.Variables["unit_rent_a"])
	}
}

func TestSQLiteStorage_GetFormulaNotFound(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	_, err := store.GetFormula(context.Background(), "missing")
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_SaveFormulasIgnoresDuplicateIDs(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	formulas := createTestFormulas(1, "income_statement")
	if err := store.SaveFormulas(ctx, formulas); err != nil {
		t.Fatalf("Failed to save formulas: %v", err)
	}

	// Re-importing the same ID must not overwrite existing state.
	if err := store.UpdateFormulaStatus(ctx, formulas[0].ID, model.StatusValidated); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}
	if err := store.SaveFormulas(ctx, formulas); err != nil {
		t.Fatalf("Failed to re-save formulas: %v", err)
	}

	got, err := store.GetFormula(ctx, formulas[0].ID)
	if err != nil {
		t.Fatalf("Failed to get formula: %v", err)
	}
	if got.Status != model.StatusValidated {
		t.Errorf("Status = %q, want validated after duplicate import", got.Status)
	}
}

func TestSQLiteStorage_GetPendingFormulasPriorityOrder(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	low := createTestFormulas(1, "misc_page")
	medium := createTestFormulas(1, "account_totals")
	high := createTestFormulas(1, "delinquency_report")

	// Insert in reverse priority order; the read view must re-sort.
	for _, batch := range [][]model.Formula{low, medium, high} {
		if err := store.SaveFormulas(ctx, batch); err != nil {
			t.Fatalf("Failed to save formulas: %v", err)
		}
	}

	pending, err := store.GetPendingFormulas(ctx)
	if err != nil {
		t.Fatalf("Failed to get pending formulas: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("Pending count = %d, want 3", len(pending))
	}

	wantOrder := []model.PriorityTier{model.TierHigh, model.TierMedium, model.TierLow}
	for i, want := range wantOrder {
		if got := pending[i].Tier(); got != want {
			t.Errorf("pending[%d].Tier() = %s, want %s", i, got, want)
		}
	}
}

func TestSQLiteStorage_GetPendingExcludesTerminal(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	formulas := createTestFormulas(4, "income_statement")
	if err := store.SaveFormulas(ctx, formulas); err != nil {
		t.Fatalf("Failed to save formulas: %v", err)
	}

	for i, status := range []model.VerificationStatus{
		model.StatusValidated, model.StatusRejected, model.StatusManualReview,
	} {
		if err := store.UpdateFormulaStatus(ctx, formulas[i].ID, status); err != nil {
			t.Fatalf("Failed to update status: %v", err)
		}
	}

	pending, err := store.GetPendingFormulas(ctx)
	if err != nil {
		t.Fatalf("Failed to get pending formulas: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Pending count = %d, want 1", len(pending))
	}
	if pending[0].ID != formulas[3].ID {
		t.Errorf("Pending formula = %s, want %s", pending[0].ID, formulas[3].ID)
	}
}

func TestSQLiteStorage_UpdateStatusIdempotent(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	formulas := createTestFormulas(1, "income_statement")
	if err := store.SaveFormulas(ctx, formulas); err != nil {
		t.Fatalf("Failed to save formulas: %v", err)
	}

	// Re-applying the same terminal transition is a no-op, not an error.
	for i := 0; i < 2; i++ {
		if err := store.UpdateFormulaStatus(ctx, formulas[0].ID, model.StatusValidated); err != nil {
			t.Fatalf("Update %d failed: %v", i+1, err)
		}
	}

	got, err := store.GetFormula(ctx, formulas[0].ID)
	if err != nil {
		t.Fatalf("Failed to get formula: %v", err)
	}
	if got.Status != model.StatusValidated {
		t.Errorf("Status = %q, want validated", got.Status)
	}
}

func TestSQLiteStorage_MigrateIdempotent(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	// createTestStorage already migrated; a second run applies nothing.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Repeated migrate failed: %v", err)
	}

	var version int
	if err := store.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("Failed to read schema version: %v", err)
	}
	if version != ExpectedSchemaVersion {
		t.Errorf("Schema version = %d, want %d", version, ExpectedSchemaVersion)
	}
}

func TestSQLiteStorage_ValidationRejectsBadInput(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.SaveFormulas(ctx, nil); err == nil {
		t.Error("Expected error for nil formulas")
	}
	if err := store.SaveFormulas(ctx, []model.Formula{}); err == nil {
		t.Error("Expected error for empty formulas")
	}
	if err := store.SaveFormulas(ctx, []model.Formula{{PageID: "p"}}); err == nil {
		t.Error("Expected error for formula without ID")
	}
	if err := store.UpdateFormulaStatus(ctx, "f-1", "bogus"); err == nil {
		t.Error("Expected error for invalid status")
	}
	if _, err := store.GetFormula(ctx, "  "); err == nil {
		t.Error("Expected error for blank ID")
	}
}
