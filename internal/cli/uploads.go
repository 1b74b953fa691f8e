package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/kiranshivaraju/nsstatus/internal/status"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	jsonFormat = "json"
	textFormat = "text"
)

var legalOutputTypes = []string{jsonFormat, textFormat}

type UploadsOptions struct {
	GlobalOptions

	Output string
}

func DefaultUploadsOptions() *UploadsOptions {
	return &UploadsOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Output:        jsonFormat,
	}
}

func NewCmdUploads() *cobra.Command {
	o := DefaultUploadsOptions()
	cmd := &cobra.Command{
		Use:   "uploads ID",
		Short: "List NeuroVault uploads of an analysis with their banners.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *UploadsOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
}

func (o *UploadsOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if !slices.Contains(legalOutputTypes, o.Output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}
	return nil
}

func (o *UploadsOptions) Run(ctx context.Context, out io.Writer, id string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	records, err := o.Client().Uploads(ctx, id)
	if err != nil {
		return fmt.Errorf("reading uploads of %s: %w", id, err)
	}

	summaries := status.Summarize(records)
	if o.Output == textFormat {
		return writeUploadsText(out, summaries)
	}
	if summaries == nil {
		summaries = []status.UploadSummary{}
	}
	return writeJSON(out, summaries)
}

func writeUploadsText(out io.Writer, summaries []status.UploadSummary) error {
	if len(summaries) == 0 {
		_, err := fmt.Fprintln(out, "No uploads")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "COLLECTION\tUPLOADED\tESTIMATOR\tFMRIPREP\tCLI\tSTATUS")
	for _, s := range summaries {
		messages := make([]string, 0, len(s.Banners))
		for _, b := range s.Banners {
			messages = append(messages, b.Message)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			s.CollectionID, s.UploadedAt, s.Estimator, s.FmriprepVersion, s.CLIVersion,
			strings.Join(messages, "; "))
	}
	return w.Flush()
}
