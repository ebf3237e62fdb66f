package cli

import (
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		Short:        "Serve the bookmarks API",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	_, loggerClient, a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = loggerClient.Sync() }()

	return a.Run(cmd.Context())
}
