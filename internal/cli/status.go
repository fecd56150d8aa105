package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/memgen-go/internal/lifecycle"
	"github.com/raphaelgruber/memgen-go/internal/lock"
	"github.com/raphaelgruber/memgen-go/internal/models"
)

var statusCmd = &cobra.Command{
	Use:   "status <service> [scope-id]",
	Short: "Show run and artifact state for a service",
	Long: `Show the scope's lock state (active run, queued request, staleness) and
the service's artifact counts per lifecycle status, including artifacts
stranded mid-downgrade by an interrupted restore.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	serviceName := args[0]

	scopeID := ""
	if len(args) == 2 {
		scopeID = args[1]
	}
	scope := models.ScopeKey{Service: serviceName, ScopeID: scopeID}

	locks := lock.NewCoordinator(gateway, cfg.StaleAfter, logger)
	state, err := locks.Read(ctx, scope)
	if err != nil {
		return fmt.Errorf("read lock: %w", err)
	}

	fmt.Printf("Scope: %s\n", scope.String())
	if state == nil {
		fmt.Println("  No run ever tracked")
	} else if !state.InProgress {
		fmt.Printf("  Idle (last run %s)\n", state.UpdatedAt.Format(time.RFC3339))
	} else {
		fmt.Printf("  Run active: %s (started %s)\n",
			state.CurrentRequestID, state.StartedAt.Format(time.RFC3339))
		if state.PendingRequestID != "" {
			fmt.Printf("  Queued request: %s\n", state.PendingRequestID)
		}
		if state.Stale(time.Now(), cfg.StaleAfter) {
			fmt.Println("  Holder presumed crashed; the next trigger takes over the lock")
		}
	}

	fmt.Printf("\nArtifacts (%s):\n", serviceName)
	for _, st := range []struct {
		label  string
		status models.ArtifactStatus
	}{
		{"current", models.StatusCurrent},
		{"pending", models.StatusPending},
		{"archived", models.StatusArchived},
	} {
		var scopes []string
		if scopeID != "" {
			scopes = []string{scopeID}
		}
		arts, err := gateway.ListArtifacts(ctx, serviceName, st.status, scopes)
		if err != nil {
			return fmt.Errorf("list %s artifacts: %w", st.label, err)
		}
		fmt.Printf("  %-9s %d\n", st.label, len(arts))
	}

	mgr := lifecycle.NewManager(gateway, collector, logger)
	stranded, err := mgr.DetectPartialDowngrade(ctx, serviceName)
	if err != nil {
		return err
	}
	if stranded > 0 {
		fmt.Printf("\nWarning: %d artifact(s) stranded mid-downgrade.\n", stranded)
		fmt.Println("A downgrade was interrupted between its steps; re-run 'memgen downgrade' or inspect manually.")
	}

	return nil
}
