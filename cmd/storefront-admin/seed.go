package main

import (
	"fmt"
	"io"
	"os"

	"storefront-api/internal/maintenance"

	"github.com/spf13/cobra"
)

func newSeedCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Append users and products that are missing from the store",
		Long: `Load users and products from a YAML file and append every entry whose
id is not in the store yet. Existing rows are never rewritten.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			users, products, err := maintenance.ParseSeed(f)
			if err != nil {
				return err
			}

			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.close()

			report, err := maintenance.NewSeeder(e.store, e.tables, e.log).Seed(cmd.Context(), users, products)
			if err != nil {
				return err
			}

			return write(cmd.OutOrStdout(), opts.Format, report, func(w io.Writer) {
				fmt.Fprintf(w, "users:    %d added, %d already present\n", report.UsersAdded, report.UsersSkipped)
				fmt.Fprintf(w, "products: %d added, %d already present\n", report.ProductsAdded, report.ProductsSkipped)
			})
		},
	}
}
