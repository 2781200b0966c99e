package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jengzang/trails-backend-go/internal/app"
	"github.com/jengzang/trails-backend-go/internal/gpx"
	"github.com/jengzang/trails-backend-go/internal/models"
	"github.com/jengzang/trails-backend-go/internal/service"
	"github.com/jengzang/trails-backend-go/internal/spatial"
)

func listCmd(withApp appRunner) *cobra.Command {
	var filter models.TrailFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored trails",
		Long: `List trails from the primary store plus offline trails not yet synced.

Examples:
  trailctl list
  trailctl list --tag hiking --page-size 50`,
		Args: cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			result, err := a.Trails.ListTrails(ctx, filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(result.Data) == 0 {
				fmt.Fprintln(out, "No trails found")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTART\tDISTANCE\tPOINTS\tSYNC")
			for _, t := range result.Data {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					t.ID,
					t.Name,
					t.StartTime.Format("2006-01-02 15:04"),
					formatDistance(t.Metadata.Distance),
					len(t.Points),
					syncStatusColor(t.SyncStatus),
				)
			}
			w.Flush()
			fmt.Fprintln(out, dimColor.Sprintf("page %d/%d, %d trails", result.Page, max(result.TotalPages, 1), result.Total))
			return nil
		}),
	}

	cmd.Flags().StringVar(&filter.UserID, "user", "", "only trails of this user")
	cmd.Flags().StringVar(&filter.Tag, "tag", "", "only trails with this tag")
	cmd.Flags().BoolVar(&filter.LocalOnly, "local-only", false, "only trails not yet synced")
	cmd.Flags().IntVar(&filter.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&filter.PageSize, "page-size", 20, "trails per page")
	return cmd
}

func showCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "show <trail-id>",
		Short: "Show one trail",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			trail, err := findTrail(ctx, a, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", okColor.Sprint(trail.Name), dimColor.Sprintf("(%s)", trail.ID))
			if trail.Description != "" {
				fmt.Fprintf(out, "  %s\n", trail.Description)
			}
			fmt.Fprintf(out, "  Start:     %s\n", trail.StartTime.Format(time.RFC3339))
			if trail.EndTime != nil {
				fmt.Fprintf(out, "  End:       %s\n", trail.EndTime.Format(time.RFC3339))
			}
			fmt.Fprintf(out, "  Points:    %d\n", len(trail.Points))
			fmt.Fprintf(out, "  Distance:  %s\n", formatDistance(trail.Metadata.Distance))
			fmt.Fprintf(out, "  Duration:  %s\n", (time.Duration(trail.Metadata.Duration) * time.Second).String())
			fmt.Fprintf(out, "  Elevation: +%.0fm / -%.0fm\n", trail.Metadata.ElevationGain, trail.Metadata.ElevationLoss)
			fmt.Fprintf(out, "  Speed:     avg %.2f m/s, max %.2f m/s\n", trail.Metadata.AvgSpeed, trail.Metadata.MaxSpeed)
			if len(trail.Points) > 0 {
				b := spatial.BoundingBox(trail.Points)
				fmt.Fprintf(out, "  Bounds:    %.5f,%.5f .. %.5f,%.5f\n", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
			}
			if len(trail.Tags) > 0 {
				fmt.Fprintf(out, "  Tags:      %v\n", trail.Tags)
			}
			fmt.Fprintf(out, "  Sync:      %s (version %d)\n", syncStatusColor(trail.SyncStatus), trail.Version)
			return nil
		}),
	}
}

func deleteCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <trail-id>",
		Short: "Delete a trail from both stores",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			if err := a.Trails.DeleteTrail(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s trail %s\n", okColor.Sprint("Deleted"), args[0])
			return nil
		}),
	}
}

func exportCmd(withApp appRunner) *cobra.Command {
	var output string
	var epsilon float64

	cmd := &cobra.Command{
		Use:   "export <trail-id>",
		Short: "Export a trail as GPX",
		Long: `Write the trail as a GPX 1.1 document to stdout or --output.

Examples:
  trailctl export 5f0c... > walk.gpx
  trailctl export 5f0c... --output walk.gpx --simplify 5`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			trail, err := findTrail(ctx, a, args[0])
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("simplify") {
				epsilon = a.Config.GPXSimplifyEpsilon
			}
			data, err := gpx.Export(trail, epsilon)
			if err != nil {
				return err
			}

			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", okColor.Sprint("Exported to"), output)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().Float64Var(&epsilon, "simplify", 0, "simplification tolerance in meters")
	return cmd
}

func importCmd(withApp appRunner) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "import <file.gpx>",
		Short: "Import a GPX file as a new trail",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			trail, err := gpx.Import(f)
			if err != nil {
				return err
			}
			trail.UserID = owner

			saved, outcome, err := a.Trails.Save(ctx, trail)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s (%s, %d points, %s)\n",
				okColor.Sprint("Imported"), saved.Name, saved.ID, len(saved.Points), formatDistance(saved.Metadata.Distance))
			if outcome.Source != service.SourcePrimary {
				fmt.Fprintln(out, warnColor.Sprint("Primary store unavailable, trail saved offline"))
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&owner, "owner", "", "user id to own the trail")
	return cmd
}

func findTrail(ctx context.Context, a *app.App, id string) (*models.Trail, error) {
	trail, err := a.Trails.GetTrailByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if trail == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrTrailNotFound, id)
	}
	return trail, nil
}

func formatDistance(meters float64) string {
	if meters >= 1000 {
		return fmt.Sprintf("%.2f km", meters/1000)
	}
	return fmt.Sprintf("%.0f m", meters)
}

func syncStatusColor(status string) string {
	switch status {
	case models.SyncStatusSynced:
		return okColor.Sprint(status)
	case models.SyncStatusFailed:
		return errorColor.Sprint(status)
	default:
		return warnColor.Sprint(status)
	}
}
