package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/propflow/veritas/internal/cli"
)

func providersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Show oracle provider performance",
		Long: `Show per-provider success rate, mean latency, and cost over a
trailing window, aggregated from recorded oracle calls.`,
		RunE: runProviders,
	}

	cmd.Flags().Duration("window", 24*time.Hour, "Trailing window to aggregate over")

	return cmd
}

func runProviders(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	window, _ := cmd.Flags().GetDuration("window")

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	perf, err := store.GetProviderPerformance(ctx, window)
	if err != nil {
		return err
	}

	fmt.Println(cli.TitleStyle.Render(fmt.Sprintf("Provider performance (last %s)", window)))

	if len(perf) == 0 {
		fmt.Println(cli.SubtleStyle.Render("  no oracle calls recorded in window"))
		return nil
	}

	fmt.Printf("  %s\n", cli.HeaderStyle.Render(fmt.Sprintf("%-16s %7s %9s %12s %10s", "provider", "calls", "success", "latency", "cost")))
	for _, p := range perf {
		line := fmt.Sprintf("%-16s %7d %8.1f%% %12s %10.0f",
			p.Provider, p.Calls, p.SuccessRate*100, p.MeanLatency.Round(time.Millisecond), p.TotalCost)
		if p.SuccessRate < 0.5 {
			line = cli.ErrorStyle.Render(line)
		}
		fmt.Printf("  %s\n", line)
	}

	return nil
}
