package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/propflow/veritas/internal/cli"
	"github.com/propflow/veritas/internal/model"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue depth and validation progress",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	counts, err := store.CountByStatus(ctx)
	if err != nil {
		return err
	}

	depth, err := store.GetQueueDepth(ctx)
	if err != nil {
		return err
	}

	fmt.Println(cli.TitleStyle.Render("Validation status"))
	fmt.Printf("  %s %d\n", cli.SuccessStyle.Render("validated:"), counts[model.StatusValidated])
	fmt.Printf("  %s %d\n", cli.SubtleStyle.Render("pending:"), counts[model.StatusPending])
	fmt.Printf("  %s %d\n", cli.WarningStyle.Render("manual review:"), counts[model.StatusManualReview])
	fmt.Printf("  %s %d\n", cli.ErrorStyle.Render("rejected:"), counts[model.StatusRejected])

	fmt.Println(cli.TitleStyle.Render("Queue depth by tier"))
	for _, tier := range []model.PriorityTier{model.TierHigh, model.TierMedium, model.TierLow} {
		fmt.Printf("  %-8s %d\n", tier, depth[tier])
	}

	summaries, err := store.GetPageSummaries(ctx)
	if err != nil {
		return err
	}

	if len(summaries) > 0 {
		fmt.Println(cli.TitleStyle.Render("Pages"))
		fmt.Printf("  %s\n", cli.HeaderStyle.Render(fmt.Sprintf("%-24s %-20s %9s %8s %7s %9s %7s", "page", "type", "validated", "pending", "review", "rejected", "score")))
		for _, s := range summaries {
			fmt.Printf("  %-24s %-20s %9d %8d %7d %9d %7.2f\n",
				s.PageID, s.PageType, s.Validated, s.Pending, s.ManualReview, s.Rejected, s.AvgConsensus)
		}
	}

	return nil
}
