package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kiranshivaraju/nsstatus/internal/apikey"
	"github.com/kiranshivaraju/nsstatus/internal/config"
	"github.com/kiranshivaraju/nsstatus/internal/store"
	"github.com/kiranshivaraju/nsstatus/pkg/models"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// storeOpener returns a store and a function releasing it.
type storeOpener func(ctx context.Context, databaseURL string) (store.Store, func(), error)

func openPostgresStore(ctx context.Context, databaseURL string) (store.Store, func(), error) {
	pool, err := store.Connect(ctx, config.DatabaseConfig{
		URL:             databaseURL,
		MaxOpenConns:    2,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		return nil, nil, err
	}
	return store.NewPostgresStore(pool), pool.Close, nil
}

// KeysCreateOptions mints an API key directly in the database. This is how
// the first admin key is created.
type KeysCreateOptions struct {
	DatabaseURL string
	Name        string
	Scopes      []string

	open storeOpener
}

func DefaultKeysCreateOptions() *KeysCreateOptions {
	return &KeysCreateOptions{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Scopes:      []string{models.ScopeRead},
		open:        openPostgresStore,
	}
}

func NewCmdKeys() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys.",
	}
	cmd.AddCommand(newCmdKeysCreate(DefaultKeysCreateOptions()))
	return cmd
}

func newCmdKeysCreate(o *KeysCreateOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key and print it once.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *KeysCreateOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.DatabaseURL, "db-url", o.DatabaseURL, "Database URL (defaults to DATABASE_URL)")
	fs.StringVar(&o.Name, "name", o.Name, "Unique key name")
	fs.StringSliceVar(&o.Scopes, "scopes", o.Scopes, "Comma separated scopes: read, submit, admin")
}

func (o *KeysCreateOptions) Validate(_ []string) error {
	if o.DatabaseURL == "" {
		return fmt.Errorf("--db-url is required (or set DATABASE_URL)")
	}
	if o.Name == "" {
		return fmt.Errorf("--name is required")
	}
	if len(o.Scopes) == 0 {
		return fmt.Errorf("--scopes must name at least one scope")
	}
	return nil
}

func (o *KeysCreateOptions) Run(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	key, raw, err := apikey.New(o.Name, o.Scopes)
	if err != nil {
		return err
	}

	s, closeStore, err := o.open(ctx, o.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer closeStore()

	if err := s.CreateAPIKey(ctx, key); err != nil {
		return fmt.Errorf("storing key: %w", err)
	}

	fmt.Fprintf(out, "Created key %q (%s) with scopes %v\n", key.Name, key.ID, key.Scopes)
	fmt.Fprintf(out, "%s\n", raw)
	return nil
}
