package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sitegist/sitegist/internal/config"
	"github.com/sitegist/sitegist/internal/server"
)

// newServeCmd creates the 'serve' subcommand running the job service.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the job service with the HTTP API",
		Long: `Starts the long-lived service: an HTTP API for submitting and
inspecting jobs, a bounded in-memory queue, and a worker pool that crawls
and synthesizes in the background. The process drains cleanly on SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			app, err := server.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}
}
