package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/memgen-go/internal/generation"
)

var (
	generateSource     string
	generateManual     bool
	generateExtractors []string
	generateInput      string
)

var generateCmd = &cobra.Command{
	Use:   "generate <service> [scope-id]",
	Short: "Run artifact generation for one scope",
	Long: `Run the extraction pipeline for a service, optionally restricted to a
single scope. Without a scope id the run is org-wide.

If a run is already active for the scope, the request is queued: the
active run will re-run once it finishes its current cycle, and this
command returns immediately.

Examples:
  memgen generate profile user-42 --input recent.txt
  memgen generate feedback --input recent.txt --source manual --allow-manual`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&generateSource, "source", "manual", "trigger source recorded for extractor filtering")
	generateCmd.Flags().BoolVar(&generateManual, "allow-manual", false, "include manual-trigger-only extractors")
	generateCmd.Flags().StringSliceVar(&generateExtractors, "extractors", nil, "restrict to the named extractors")
	generateCmd.Flags().StringVar(&generateInput, "input", "", "path to the extraction input file")
	_ = generateCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	scopeID := ""
	if len(args) == 2 {
		scopeID = args[1]
	}

	svc, err := getService(args[0], generateInput)
	if err != nil {
		return err
	}

	outcome, err := newOrchestrator(svc).Run(ctx, generation.Request{
		ScopeID:        scopeID,
		Source:         generateSource,
		AllowManual:    generateManual,
		ExtractorNames: generateExtractors,
	})
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	switch outcome {
	case generation.OutcomeQueued:
		fmt.Println("A run is already active for this scope; request queued for its next cycle.")
	default:
		fmt.Printf("Generation %s.\n", outcome)
	}
	return nil
}
