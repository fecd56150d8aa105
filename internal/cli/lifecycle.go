package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/memgen-go/internal/lifecycle"
	"github.com/raphaelgruber/memgen-go/internal/store"
)

var (
	lifecycleScopes []string
	keepArchived    bool
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade <service>",
	Short: "Promote pending artifacts to current",
	Long: `Promote a service's pending artifacts into the current set: the
previous archive is deleted (unless --keep-archived), current artifacts
become the archive, and pending artifacts become current.

Fails when the service has no pending artifacts.

Examples:
  memgen upgrade profile
  memgen upgrade profile --scopes user-42,user-43 --keep-archived`,
	Args: cobra.ExactArgs(1),
	RunE: runUpgrade,
}

var downgradeCmd = &cobra.Command{
	Use:   "downgrade <service>",
	Short: "Restore the previous artifact generation",
	Long: `Undo an upgrade: the current artifacts and the archived artifacts swap
places. Fails when the service has no archived artifacts to restore.`,
	Args: cobra.ExactArgs(1),
	RunE: runDowngrade,
}

func init() {
	upgradeCmd.Flags().StringSliceVar(&lifecycleScopes, "scopes", nil, "restrict to the given scope ids")
	upgradeCmd.Flags().BoolVar(&keepArchived, "keep-archived", false, "keep the previous archive instead of deleting it")
	downgradeCmd.Flags().StringSliceVar(&lifecycleScopes, "scopes", nil, "restrict to the given scope ids")
	rootCmd.AddCommand(upgradeCmd)
	rootCmd.AddCommand(downgradeCmd)
}

func runUpgrade(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	mgr := lifecycle.NewManager(gateway, collector, logger)

	res, err := mgr.Upgrade(ctx, lifecycle.Options{
		Service:      args[0],
		Scopes:       lifecycleScopes,
		KeepArchived: keepArchived,
	})
	if err != nil {
		if errors.Is(err, store.ErrNothingToUpgrade) {
			return fmt.Errorf("no pending artifacts to promote for %s", args[0])
		}
		// Partial upgrades are not rolled back; report what committed.
		fmt.Printf("Upgrade failed after partial progress: deleted=%d archived=%d promoted=%d\n",
			res.Deleted, res.Archived, res.Promoted)
		return fmt.Errorf("upgrade: %w", err)
	}

	fmt.Printf("Upgrade complete: deleted=%d archived=%d promoted=%d\n",
		res.Deleted, res.Archived, res.Promoted)
	return nil
}

func runDowngrade(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	mgr := lifecycle.NewManager(gateway, collector, logger)

	res, err := mgr.Downgrade(ctx, lifecycle.Options{
		Service: args[0],
		Scopes:  lifecycleScopes,
	})
	if err != nil {
		if errors.Is(err, store.ErrNothingToRestore) {
			return fmt.Errorf("no archived artifacts to restore for %s", args[0])
		}
		fmt.Printf("Downgrade failed after partial progress: demoted=%d restored=%d\n",
			res.Demoted, res.Restored)
		fmt.Println("Run 'memgen status' to inspect artifacts stranded mid-transition.")
		return fmt.Errorf("downgrade: %w", err)
	}

	fmt.Printf("Downgrade complete: demoted=%d restored=%d\n", res.Demoted, res.Restored)
	return nil
}
