package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/propflow/veritas/internal/model"
)

// formulaImport is the wire shape produced by the extraction pipeline.
type formulaImport struct {
	Variables      map[string]float64 `json:"variables"`
	PageID         string             `json:"page_id"`
	PageType       string             `json:"page_type"`
	FormulaType    string             `json:"formula_type"`
	Expression     string             `json:"expression"`
	SourceSnippet  string             `json:"source_snippet"`
	ExpectedResult *float64           `json:"expected_result"`
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import extracted formulas",
		Long: `Import a batch of formulas produced by the extraction pipeline.

The input is a JSON array of formula creation requests. Each imported
formula starts in the pending status and will be picked up by the next
validation run. Re-imported pages supersede prior extractions by adding
new pending rows; history is never deleted.

Examples:
  veritas import formulas.json
  veritas import formulas.json --batch-size 100`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}

	cmd.Flags().Int("batch-size", 50, "Formulas saved per database transaction")

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	if batchSize <= 0 {
		batchSize = 50
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read import file: %w", err)
	}

	var imports []formulaImport
	if err := json.Unmarshal(data, &imports); err != nil {
		return fmt.Errorf("failed to parse import file: %w", err)
	}

	if len(imports) == 0 {
		slog.Info("No formulas to import")
		return nil
	}

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	formulas := make([]model.Formula, 0, len(imports))
	for _, imp := range imports {
		formulas = append(formulas, model.Formula{
			ID:             uuid.NewString(),
			PageID:         imp.PageID,
			PageType:       imp.PageType,
			Kind:           model.FormulaKind(imp.FormulaType),
			Expression:     imp.Expression,
			Variables:      imp.Variables,
			ExpectedResult: imp.ExpectedResult,
			SourceSnippet:  imp.SourceSnippet,
			Status:         model.StatusPending,
		})
	}

	bar := progressbar.Default(int64(len(formulas)), "importing")
	for start := 0; start < len(formulas); start += batchSize {
		end := start + batchSize
		if end > len(formulas) {
			end = len(formulas)
		}
		if err := store.SaveFormulas(ctx, formulas[start:end]); err != nil {
			return fmt.Errorf("failed to save formulas: %w", err)
		}
		_ = bar.Add(end - start)
	}

	slog.Info("Import complete", "formulas", len(formulas))
	return nil
}
