package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jengzang/trails-backend-go/internal/app"
)

func syncCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push offline trails to the primary store",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			report, err := a.Sync.RunOnce(ctx)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Pending: %d  Synced: %s  Failed: %s\n",
				report.Pending,
				okColor.Sprint(report.Synced),
				errorColor.Sprint(report.Failed),
			)
			for _, id := range report.FailedIDs {
				fmt.Fprintf(out, "  %s %s\n", errorColor.Sprint("✗"), id)
			}
			return err
		}),
	}
}

func clearCmd(withApp appRunner) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every trail from both stores",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete all trails without --yes")
			}
			if err := a.Trails.ClearAllTrails(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okColor.Sprint("All trails deleted"))
			return nil
		}),
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting every trail")
	return cmd
}
