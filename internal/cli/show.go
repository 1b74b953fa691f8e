package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/kiranshivaraju/nsstatus/internal/status"
	"github.com/kiranshivaraju/nsstatus/pkg/runcmd"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

type ShowOptions struct {
	GlobalOptions

	Image       string
	Owner       bool
	Concurrency int
}

func DefaultShowOptions() *ShowOptions {
	return &ShowOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Image:         envOr("NSSTATUS_IMAGE", runcmd.DefaultImage),
		Concurrency:   4,
	}
}

func NewCmdShow() *cobra.Command {
	o := DefaultShowOptions()
	cmd := &cobra.Command{
		Use:   "show ID [ID...]",
		Short: "Print the status view of one or more analyses as JSON.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), cmd.OutOrStdout(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *ShowOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVar(&o.Image, "image", o.Image, "neuroscout-cli image used in the run command")
	fs.BoolVar(&o.Owner, "owner", o.Owner, "Render the owner's view (visibility flag, congratulations)")
	fs.IntVar(&o.Concurrency, "concurrency", o.Concurrency, "Analyses fetched in parallel")
}

func (o *ShowOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.Concurrency < 1 {
		return fmt.Errorf("--concurrency must be at least 1")
	}
	return nil
}

// Run renders each analysis once: attach, wait for the fetches, render.
// A single id prints one object; several print an array in argument order.
func (o *ShowOptions) Run(ctx context.Context, out io.Writer, ids []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	client := o.Client()
	renderer := status.Renderer{ServerRoot: o.ServerRoot, Image: o.Image}

	views := make([]status.View, len(ids))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			a, err := client.Analysis(gCtx, id)
			if err != nil {
				return fmt.Errorf("analysis %s: %w", id, err)
			}

			props := status.PropsFromAnalysis(a, o.Owner)
			tracker := status.NewTracker(client, o.Timeout)
			tracker.OnAttach(gCtx, props)
			if err := tracker.Wait(gCtx); err != nil {
				return fmt.Errorf("analysis %s: %w", id, err)
			}

			views[i] = renderer.Render(props, tracker.Snapshot(), nil)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(views) == 1 {
		return writeJSON(out, views[0])
	}
	return writeJSON(out, views)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
