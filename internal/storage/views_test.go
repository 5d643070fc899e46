package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/propflow/veritas/internal/model"
)

func TestSQLiteStorage_CountByStatus(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	formulas := createTestFormulas(5, "income_statement")
	if err := store.SaveFormulas(ctx, formulas); err != nil {
		t.Fatalf("Failed to save formulas: %v", err)
	}
	if err := store.UpdateFormulaStatus(ctx, formulas[0].ID, model.StatusValidated); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}
	if err := store.UpdateFormulaStatus(ctx, formulas[1].ID, model.StatusValidated); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}
	if err := store.UpdateFormulaStatus(ctx, formulas[2].ID, model.StatusManualReview); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}

	counts, err := store.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("Failed to count by status: %v", err)
	}
	if counts[model.StatusValidated] != 2 {
		t.Errorf("validated = %d, want 2", counts[model.StatusValidated])
	}
	if counts[model.StatusManualReview] != 1 {
		t.Errorf("manual_review = %d, want 1", counts[model.StatusManualReview])
	}
	if counts[model.StatusPending] != 2 {
		t.Errorf("pending = %d, want 2", counts[model.StatusPending])
	}
}

func TestSQLiteStorage_GetQueueDepthGroupsByTier(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	batches := []struct {
		pageType string
		count    int
	}{
		{"rent_roll_report", 2},
		{"income_statement", 1},
		{"account_totals", 3},
		{"unknown_page", 1},
	}
	for _, b := range batches {
		if err := store.SaveFormulas(ctx, createTestFormulas(b.count, b.pageType)); err != nil {
			t.Fatalf("Failed to save %s formulas: %v", b.pageType, err)
		}
	}

	// Validated formulas leave the queue.
	if err := store.UpdateFormulaStatus(ctx, "formula-account_totals-1", model.StatusValidated); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}

	depth, err := store.GetQueueDepth(ctx)
	if err != nil {
		t.Fatalf("Failed to get queue depth: %v", err)
	}
	if depth[model.TierHigh] != 3 {
		t.Errorf("HIGH depth = %d, want 3", depth[model.TierHigh])
	}
	if depth[model.TierMedium] != 2 {
		t.Errorf("MEDIUM depth = %d, want 2", depth[model.TierMedium])
	}
	if depth[model.TierLow] != 1 {
		t.Errorf("LOW depth = %d, want 1", depth[model.TierLow])
	}
}

func TestSQLiteStorage_GetProviderPerformance(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	attemptID := uuid.NewString()
	now := time.Now()
	records := []model.OracleCallRecord{
		{ID: uuid.NewString(), AttemptID: attemptID, Provider: "anthropic",
			Success: true, CostMetric: 100,
			RequestedAt: now.Add(-time.Second), RespondedAt: now},
		{ID: uuid.NewString(), AttemptID: attemptID, Provider: "anthropic",
			Success: false, ErrorCategory: "timeout", CostMetric: 0,
			RequestedAt: now.Add(-2 * time.Second), RespondedAt: now},
		{ID: uuid.NewString(), AttemptID: attemptID, Provider: "openai",
			Success: true, CostMetric: 250,
			RequestedAt: now.Add(-time.Second), RespondedAt: now},
		// Outside the trailing window, must be excluded.
		{ID: uuid.NewString(), AttemptID: attemptID, Provider: "openai",
			Success: false, ErrorCategory: "transport",
			RequestedAt: now.Add(-48 * time.Hour), RespondedAt: now.Add(-48 * time.Hour)},
	}
	for i := range records {
		if err := store.RecordCall(ctx, &records[i]); err != nil {
			t.Fatalf("Failed to record call %d: %v", i, err)
		}
	}

	perf, err := store.GetProviderPerformance(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Failed to get provider performance: %v", err)
	}
	if len(perf) != 2 {
		t.Fatalf("Provider count = %d, want 2", len(perf))
	}

	anthropic, openai := perf[0], perf[1]
	if anthropic.Provider != "anthropic" || openai.Provider != "openai" {
		t.Fatalf("Provider order = [%s, %s]", anthropic.Provider, openai.Provider)
	}
	if anthropic.Calls != 2 || anthropic.Failures != 1 {
		t.Errorf("anthropic calls/failures = %d/%d, want 2/1", anthropic.Calls, anthropic.Failures)
	}
	if anthropic.SuccessRate != 0.5 {
		t.Errorf("anthropic success rate = %v, want 0.5", anthropic.SuccessRate)
	}
	if openai.Calls != 1 || openai.Failures != 0 {
		t.Errorf("openai calls/failures = %d/%d, want 1/0 (stale record excluded)", openai.Calls, openai.Failures)
	}
	if openai.TotalCost != 250 {
		t.Errorf("openai total cost = %v, want 250", openai.TotalCost)
	}
	if anthropic.MeanLatency <= 0 {
		t.Errorf("anthropic mean latency = %v, want positive", anthropic.MeanLatency)
	}
}

func TestSQLiteStorage_GetPageSummaries(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	// createTestFormulas alternates page-1/page-2 for PageID.
	formulas := createTestFormulas(4, "property_dashboard")
	if err := store.SaveFormulas(ctx, formulas); err != nil {
		t.Fatalf("Failed to save formulas: %v", err)
	}

	attempt := testAttempt(formulas[0].ID, true)
	if err := store.RecordAttempt(ctx, attempt, model.StatusValidated); err != nil {
		t.Fatalf("Failed to record attempt: %v", err)
	}

	summaries, err := store.GetPageSummaries(ctx)
	if err != nil {
		t.Fatalf("Failed to get page summaries: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("Summary count = %d, want 2", len(summaries))
	}

	page1 := summaries[0]
	if page1.PageID != "page-1" {
		t.Fatalf("First summary page = %s, want page-1", page1.PageID)
	}
	if page1.Validated != 1 || page1.Pending != 1 {
		t.Errorf("page-1 validated/pending = %d/%d, want 1/1", page1.Validated, page1.Pending)
	}
	if page1.ScoredFormulas != 1 {
		t.Errorf("page-1 scored formulas = %d, want 1", page1.ScoredFormulas)
	}
	if page1.AvgConsensus != 1.0 {
		t.Errorf("page-1 avg consensus = %v, want 1.0", page1.AvgConsensus)
	}

	page2 := summaries[1]
	if page2.Pending != 2 || page2.Validated != 0 {
		t.Errorf("page-2 pending/validated = %d/%d, want 2/0", page2.Pending, page2.Validated)
	}
}

func TestSQLiteStorage_GetManualReviewItems(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	formulas := createTestFormulas(2, "delinquency_report")
	if err := store.SaveFormulas(ctx, formulas); err != nil {
		t.Fatalf("Failed to save formulas: %v", err)
	}

	// Two failed rounds, then escalation: the review item must carry the
	// final attempt's recommendation, not the first one's.
	first := testAttempt(formulas[0].ID, false)
	first.Recommendation = "first round disagreement"
	if err := store.RecordAttempt(ctx, first, model.StatusPending); err != nil {
		t.Fatalf("Failed to record first attempt: %v", err)
	}
	last := testAttempt(formulas[0].ID, false)
	last.Recommendation = "openai returned 2550 vs majority 1200"
	last.RequiresManualReview = true
	if err := store.RecordAttempt(ctx, last, model.StatusManualReview); err != nil {
		t.Fatalf("Failed to record final attempt: %v", err)
	}

	items, err := store.GetManualReviewItems(ctx)
	if err != nil {
		t.Fatalf("Failed to get review items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Review item count = %d, want 1", len(items))
	}

	item := items[0]
	if item.Formula.ID != formulas[0].ID {
		t.Errorf("Review item formula = %s, want %s", item.Formula.ID, formulas[0].ID)
	}
	if item.Formula.Status != model.StatusManualReview {
		t.Errorf("Review item status = %q, want manual_review", item.Formula.Status)
	}
	if item.Attempts != 2 {
		t.Errorf("Review item attempts = %d, want 2", item.Attempts)
	}
	if item.Recommendation != last.Recommendation {
		t.Errorf("Recommendation = %q, want %q", item.Recommendation, last.Recommendation)
	}
	if len(item.Formula.Variables) != 2 {
		t.Errorf("Review item variables count = %d, want 2", len(item.Formula.Variables))
	}
}
