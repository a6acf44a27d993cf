package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"storefront-api/internal/config"
	"storefront-api/internal/ledger"
	"storefront-api/internal/repository"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	Verbose   bool
	Format    string // "text" | "json" | "yaml"
	StoreType string
	StorePath string
}

var validFormats = []string{"text", "json", "yaml"}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "storefront-admin",
		Short: "Offline maintenance for the storefront backing store",
		Long: `storefront-admin seeds and audits the tables the storefront API reads.

Store settings come from the same environment variables as the API
(STORE_TYPE, STORE_PATH, STORE_DB_*, MONGODB_*). Flags override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range validFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log to stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVar(&opts.StoreType, "store-type", "", "override STORE_TYPE")
	cmd.PersistentFlags().StringVar(&opts.StorePath, "store-path", "", "override STORE_PATH (sqlite)")

	cmd.AddCommand(newSeedCommand(opts))
	cmd.AddCommand(newAuditCommand(opts))

	return cmd
}

// env is what every subcommand needs: the opened store and table names.
type env struct {
	store      repository.RangeStore
	tables     ledger.Tables
	orderTable string
	log        *zap.Logger
}

func (o *rootOptions) open() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if o.StoreType != "" {
		cfg.Store.Type = o.StoreType
	}
	if o.StorePath != "" {
		cfg.Store.Path = o.StorePath
	}

	logger := zap.NewNop()
	if o.Verbose {
		// development logger writes to stderr and keeps stdout parseable
		if logger, err = zap.NewDevelopment(); err != nil {
			return nil, err
		}
	}

	store, err := repository.Open(cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	return &env{
		store:      store,
		tables:     ledger.Tables{Users: cfg.Store.UserTable, Products: cfg.Store.ProductTable},
		orderTable: cfg.Store.OrderTable,
		log:        logger,
	}, nil
}

func (e *env) close() {
	_ = e.store.Close()
	_ = e.log.Sync()
}

// write renders v in the requested format. text falls back to the given
// printer.
func write(w io.Writer, format string, v interface{}, text func(io.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		text(w)
		return nil
	}
}
