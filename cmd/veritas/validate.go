package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/propflow/veritas/internal/common"
	"github.com/propflow/veritas/internal/engine"
	"github.com/propflow/veritas/internal/oracle"
)

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the consensus validation engine",
		Long: `Process all pending formulas through the consensus engine.

Each formula is dispatched to every configured oracle provider in
parallel. A formula is validated when a majority of providers agree
within tolerance; formulas that exhaust the retry budget without
consensus are escalated to manual review.

Examples:
  veritas validate                # single worker, drain the queue
  veritas validate --workers 4    # small worker pool`,
		RunE: runValidate,
	}

	cmd.Flags().IntP("workers", "w", 1, "Concurrent validation workers")
	cmd.Flags().Int("retry-budget", 3, "Maximum consensus attempts per formula")
	cmd.Flags().Duration("provider-timeout", 10*time.Second, "Per-provider call timeout")

	_ = viper.BindPFlag("engine.workers", cmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("engine.retry_budget", cmd.Flags().Lookup("retry-budget"))
	_ = viper.BindPFlag("engine.provider_timeout", cmd.Flags().Lookup("provider-timeout"))

	return cmd
}

func runValidate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	oracleCfgs, err := loadOracleConfigs()
	if err != nil {
		return err
	}

	clients, err := oracle.NewAll(oracleCfgs)
	if err != nil {
		return err
	}

	cfg := engine.DefaultConfig()
	cfg.Workers = viper.GetInt("engine.workers")
	cfg.RetryBudget = viper.GetInt("engine.retry_budget")
	cfg.ProviderTimeout = viper.GetDuration("engine.provider_timeout")
	if epsilon := viper.GetFloat64("consensus.epsilon"); epsilon > 0 {
		cfg.Consensus.Epsilon = epsilon
	}
	if relTol := viper.GetFloat64("consensus.relative_tolerance"); relTol > 0 {
		cfg.Consensus.RelativeTolerance = relTol
	}

	start := time.Now()
	eng := engine.New(store, clients, cfg)
	if err := eng.Run(ctx); err != nil {
		return common.NewUserError("validation run failed", err)
	}

	slog.Info("Validation run complete", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}
