package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/memgen-go/internal/batch"
	"github.com/raphaelgruber/memgen-go/internal/generation"
	"github.com/raphaelgruber/memgen-go/internal/models"
	"github.com/raphaelgruber/memgen-go/internal/store"
)

var (
	batchScopes []string
	batchSource string
	batchInput  string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run, inspect or cancel multi-scope generation",
}

var batchRunCmd = &cobra.Command{
	Use:   "run <service>",
	Short: "Run generation sequentially over many scopes",
	Long: `Process each scope in order, recording progress after every scope. A
concurrently issued 'memgen batch cancel' stops the run before its next
scope; already processed scopes keep their results.

Examples:
  memgen batch run profile --scopes user-1,user-2,user-3 --input recent.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

var batchCancelCmd = &cobra.Command{
	Use:   "cancel <service>",
	Short: "Request cancellation of the service's active batch run",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatchCancel,
}

var batchStatusCmd = &cobra.Command{
	Use:   "status <service>",
	Short: "Show the service's batch progress record",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatchStatus,
}

var batchWatchCmd = &cobra.Command{
	Use:   "watch <service>",
	Short: "Follow a batch run with a live progress bar",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatchWatch,
}

func init() {
	batchRunCmd.Flags().StringSliceVar(&batchScopes, "scopes", nil, "scope ids to process, in order")
	batchRunCmd.Flags().StringVar(&batchSource, "source", "scheduler", "trigger source recorded for extractor filtering")
	batchRunCmd.Flags().StringVar(&batchInput, "input", "", "path to the extraction input file")
	_ = batchRunCmd.MarkFlagRequired("scopes")
	_ = batchRunCmd.MarkFlagRequired("input")

	batchCmd.AddCommand(batchRunCmd)
	batchCmd.AddCommand(batchCancelCmd)
	batchCmd.AddCommand(batchStatusCmd)
	batchCmd.AddCommand(batchWatchCmd)
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	svc, err := getService(args[0], batchInput)
	if err != nil {
		return err
	}
	orch := newOrchestrator(svc)
	tracker := batch.NewTracker(gateway, logger)

	rec, err := tracker.Run(ctx, svc.ServiceName(), batchScopes,
		generation.Request{Source: batchSource}, orch.Run)
	if err != nil {
		return fmt.Errorf("batch run: %w", err)
	}

	printProgressRecord(rec)
	return nil
}

func runBatchCancel(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	tracker := batch.NewTracker(gateway, logger)

	if err := tracker.Cancel(ctx, args[0]); err != nil {
		if errors.Is(err, store.ErrProgressNotFound) {
			return fmt.Errorf("no batch run found for %s", args[0])
		}
		return err
	}
	fmt.Println("Cancellation requested; the run stops before its next scope.")
	return nil
}

func runBatchStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	rec, err := gateway.ReadProgress(ctx, args[0])
	if err != nil {
		if errors.Is(err, store.ErrProgressNotFound) {
			return fmt.Errorf("no batch run found for %s", args[0])
		}
		return fmt.Errorf("read progress: %w", err)
	}

	printProgressRecord(rec)
	return nil
}

func printProgressRecord(rec *models.ProgressRecord) {
	fmt.Printf("Batch: %s\n", rec.Service)
	fmt.Printf("  Status: %s\n", rec.RunStatus)
	fmt.Printf("  Progress: %d/%d (succeeded %d, failed %d)\n",
		rec.ProcessedItems, rec.TotalItems, rec.Succeeded, rec.Failed)
	if rec.CurrentItemID != "" && rec.RunStatus == models.RunInProgress {
		fmt.Printf("  Current scope: %s\n", rec.CurrentItemID)
	}
	if rec.CancellationRequested && rec.RunStatus == models.RunInProgress {
		fmt.Println("  Cancellation requested")
	}
	fmt.Printf("  Started: %s\n", rec.StartedAt.Format(time.RFC3339))
	if rec.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", rec.CompletedAt.Format(time.RFC3339))
		fmt.Printf("  Duration: %s\n", rec.CompletedAt.Sub(rec.StartedAt).Round(time.Second))
	}
	if len(rec.Errors) > 0 {
		fmt.Printf("\n  Errors (%d):\n", len(rec.Errors))
		for _, e := range rec.Errors {
			fmt.Printf("    - %s: %s\n", e.ItemID, e.Message)
		}
	}
}
