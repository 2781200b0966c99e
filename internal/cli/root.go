// Package cli implements the trailctl maintenance commands.
package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jengzang/trails-backend-go/internal/app"
	"github.com/jengzang/trails-backend-go/internal/config"
)

var openApp = app.New

var (
	okColor    = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
	dimColor   = color.New(color.Faint)
)

// RootCmd returns the trailctl root command with every subcommand attached
func RootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "trailctl",
		Short: "Inspect and maintain recorded trails",
		Long: `trailctl works directly on the configured primary and offline stores.

Configuration is read from TRAILS_* environment variables and the optional
--config file, the same way the server reads it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "optional config file")

	withApp := func(fn func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := openApp(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to open stores: %w", err)
			}
			defer a.Close()
			return fn(ctx, cmd, a, args)
		}
	}

	cmd.AddCommand(listCmd(withApp))
	cmd.AddCommand(showCmd(withApp))
	cmd.AddCommand(deleteCmd(withApp))
	cmd.AddCommand(exportCmd(withApp))
	cmd.AddCommand(importCmd(withApp))
	cmd.AddCommand(syncCmd(withApp))
	cmd.AddCommand(clearCmd(withApp))

	return cmd
}

type appRunner func(fn func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error) func(*cobra.Command, []string) error
