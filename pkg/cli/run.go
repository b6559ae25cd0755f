package cli

import (
	"bartershops/internal/bootstrap"
	"bartershops/pkg/logging"
	"context"

	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the trade engine until interrupted",
		Long: `Load the configuration, open the trade record store and start the
owner loop, session sweeper, delete-window reverter, health checks and
metrics endpoint. Stops on SIGINT or SIGTERM.

Examples:
  bartershops run --config configs/config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			app, err := bootstrap.NewApp(ctx, rootOpts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to start", err)
			}
			logging.Info("Configuration loaded", "path", rootOpts.ConfigPath, "version", Version)
			if err := app.Run(ctx); err != nil {
				return WrapExitError(ExitFailure, "service stopped", err)
			}
			return nil
		},
	}
}
