package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/charlesng35/formgate/internal/services"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export submissions to a spreadsheet",
		Long: `Write every stored submission to an xlsx workbook.

Nothing is written when the record store is empty.

Examples:
  formgatectl export
  formgatectl export --output ./out/submissions.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output path (defaults to export.path)")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	stores, err := opts.openStores(ctx)
	if err != nil {
		return err
	}
	defer stores.Close()

	svc, err := services.NewExportService(stores.Records)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to prepare export", err)
	}

	path := opts.Output
	if path == "" {
		path = opts.Config().Export.Path
	}

	result, err := svc.Export(ctx, path)
	if err != nil {
		return WrapExitError(ExitFailure, "export failed", err)
	}

	out := cmd.OutOrStdout()
	if !result.Written {
		fmt.Fprintln(out, "No submissions to export.")
		return nil
	}
	fmt.Fprintf(out, "Exported %d submissions to %s\n", result.Rows, result.Path)
	return nil
}
