// Package cli holds the marks command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/marks/internal/app"
	"github.com/MrSnakeDoc/marks/internal/config"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

// NewRootCommand creates the root command. Without a subcommand it serves.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "marks",
		Short: "Marks - optimistic bookmarks over a Redis change feed",
		Long: `Marks keeps a per-user bookmark view in memory, applies local edits
immediately and reconciles them with the changes Redis publishes.

Configuration is read from MARKS_* environment variables.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewImportCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// setup loads configuration and connects. config.Load panics on invalid
// settings.
func setup(cmd *cobra.Command) (*config.Config, logger.Logger, *app.App, error) {
	cfg := config.Load()
	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	a, err := app.New(cmd.Context(), cfg, loggerClient)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, loggerClient, a, nil
}
