// Package cli implements the nsstatus command line tool.
package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kiranshivaraju/nsstatus/internal/neuroscout"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const defaultBaseURL = "https://neuroscout.org"

// GlobalOptions are the upstream connection flags shared by every command.
// Defaults come from the same environment variables the server reads.
type GlobalOptions struct {
	BaseURL    string
	ServerRoot string
	Token      string
	Timeout    time.Duration
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		BaseURL:    envOr("NEUROSCOUT_BASE_URL", defaultBaseURL),
		ServerRoot: os.Getenv("NEUROSCOUT_SERVER_ROOT"),
		Token:      os.Getenv("NEUROSCOUT_TOKEN"),
		Timeout:    30 * time.Second,
	}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.BaseURL, "base-url", "u", o.BaseURL, "Neuroscout API base URL")
	fs.StringVar(&o.ServerRoot, "server-root", o.ServerRoot, "Public origin for download links (defaults to --base-url)")
	fs.StringVar(&o.Token, "token", o.Token, "Neuroscout JWT")
	fs.DurationVar(&o.Timeout, "timeout", o.Timeout, "Per-request timeout")
}

func (o *GlobalOptions) Complete(_ *cobra.Command, _ []string) error {
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.ServerRoot == "" {
		o.ServerRoot = o.BaseURL
	}
	o.ServerRoot = strings.TrimRight(o.ServerRoot, "/")
	return nil
}

func (o *GlobalOptions) Validate(_ []string) error {
	if !strings.HasPrefix(o.BaseURL, "http://") && !strings.HasPrefix(o.BaseURL, "https://") {
		return fmt.Errorf("--base-url must start with http:// or https://, got %q", o.BaseURL)
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("--timeout must be positive")
	}
	return nil
}

func (o *GlobalOptions) Client() neuroscout.Client {
	return neuroscout.NewHTTPClient(o.BaseURL, o.Token, o.Timeout)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewRootCommand assembles the nsstatus command tree.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nsstatus",
		Short: "Inspect Neuroscout analysis status pages from the terminal.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		SilenceUsage: true,
	}
	cmd.AddCommand(NewCmdShow())
	cmd.AddCommand(NewCmdUploads())
	cmd.AddCommand(NewCmdKeys())
	return cmd
}
