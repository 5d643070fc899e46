package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/propflow/veritas/internal/cli"
	"github.com/propflow/veritas/internal/model"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "List and resolve formulas awaiting manual review",
		Long: `List formulas that exhausted the retry budget without reaching
consensus, along with the evaluator's recommendation for each.

A human adjudication is recorded with --resolve:

  veritas review
  veritas review --resolve 3f1c... --as validated
  veritas review --resolve 3f1c... --as rejected`,
		RunE: runReview,
	}

	cmd.Flags().String("resolve", "", "Formula ID to resolve")
	cmd.Flags().String("as", "", "Resolution status (validated or rejected)")

	return cmd
}

func runReview(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	resolveID, _ := cmd.Flags().GetString("resolve")
	resolveAs, _ := cmd.Flags().GetString("as")

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	if resolveID != "" {
		status := model.VerificationStatus(resolveAs)
		if status != model.StatusValidated && status != model.StatusRejected {
			return fmt.Errorf("--as must be validated or rejected, got %q", resolveAs)
		}

		formula, err := store.GetFormula(ctx, resolveID)
		if err != nil {
			return err
		}
		if formula.Status != model.StatusManualReview {
			return fmt.Errorf("formula %s is %s, not awaiting manual review", resolveID, formula.Status)
		}

		if err := store.UpdateFormulaStatus(ctx, resolveID, status); err != nil {
			return err
		}
		slog.Info("Manual review resolved", "formula_id", resolveID, "status", status)
		return nil
	}

	items, err := store.GetManualReviewItems(ctx)
	if err != nil {
		return err
	}

	fmt.Println(cli.TitleStyle.Render("Formulas awaiting manual review"))

	if len(items) == 0 {
		fmt.Println(cli.SubtleStyle.Render("  none"))
		return nil
	}

	for _, item := range items {
		fmt.Printf("%s  %s\n", cli.WarningStyle.Render(item.Formula.ID), cli.SubtleStyle.Render(fmt.Sprintf("(%s, %d attempts)", item.Formula.PageType, item.Attempts)))
		fmt.Printf("  expression: %s\n", item.Formula.Expression)
		fmt.Printf("  %s\n\n", item.Recommendation)
	}

	return nil
}
