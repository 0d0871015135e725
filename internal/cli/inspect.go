package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/charlesng35/formgate/internal/models"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Format string // "text" | "json"
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print stored submissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	return cmd
}

func runInspect(opts *InspectOptions, cmd *cobra.Command) error {
	if opts.Format != "text" && opts.Format != "json" {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of [text json]", opts.Format))
	}

	ctx := cmd.Context()
	stores, err := opts.openStores(ctx)
	if err != nil {
		return err
	}
	defer stores.Close()

	records, err := stores.Records.List(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read submissions", err)
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		if records == nil {
			records = []models.Submission{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "No submissions found")
		return nil
	}
	return writeSubmissionTable(out, records)
}

func writeSubmissionTable(w io.Writer, records []models.Submission) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tAGE\tTIMESTAMP")
	for _, rec := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n",
			rec.ID, rec.Name, rec.Email, rec.Age, rec.Timestamp.UTC().Format(time.DateTime))
	}
	return tw.Flush()
}
