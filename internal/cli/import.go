package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	File      string
	Principal string
	JSON      bool
}

// NewImportCommand creates the import command.
func NewImportCommand() *cobra.Command {
	opts := &ImportOptions{}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a homepage bookmarks.yaml",
		Long: `Import every bookmark of a homepage bookmarks.yaml for one principal.

Bookmarks whose URL is already stored are skipped. The command returns
once Redis has accepted or refused each new record.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "bookmarks.yaml to import (default: $MARKS_IMPORT_FILE)")
	cmd.Flags().StringVarP(&opts.Principal, "principal", "p", "", "owner of the imported records (default: $MARKS_PRINCIPAL)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print the report as JSON")

	return cmd
}

func runImport(cmd *cobra.Command, opts *ImportOptions) error {
	cfg, loggerClient, a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = loggerClient.Sync() }()

	file := opts.File
	if file == "" {
		file = cfg.ImportFile
	}
	principal := opts.Principal
	if principal == "" {
		principal = cfg.Principal
	}
	if file == "" {
		return fmt.Errorf("no file to import: use --file or MARKS_IMPORT_FILE")
	}

	report, err := a.Import(cmd.Context(), file, principal)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	_, err = fmt.Fprintf(out, "created=%d skipped=%d invalid=%d rejected=%d\n",
		report.Created, report.Skipped, report.Invalid, report.Rejected)
	return err
}
