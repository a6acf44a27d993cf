package main

import (
	"fmt"
	"io"

	"storefront-api/internal/maintenance"

	"github.com/spf13/cobra"
)

func newAuditCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Report inconsistencies in the store",
		Long: `Scan the user, product and order tables and report negative or
unparsable cells, shadowed duplicate rows, repeated idempotency keys,
orders whose total disagrees with their line items and orders for
unknown users. Exits non-zero when anything is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.close()

			report, err := maintenance.NewAuditor(e.store, e.tables, e.orderTable, e.log).Run(cmd.Context())
			if err != nil {
				return err
			}

			err = write(cmd.OutOrStdout(), opts.Format, report, func(w io.Writer) {
				fmt.Fprintf(w, "scanned %d users, %d products, %d orders\n", report.Users, report.Products, report.Orders)
				for _, f := range report.Findings {
					fmt.Fprintf(w, "%s!%d\t%s\t%s\t%s\n", f.Table, f.Position, f.Kind, f.ID, f.Detail)
				}
			})
			if err != nil {
				return err
			}
			if !report.Clean() {
				return fmt.Errorf("audit found %d issue(s)", len(report.Findings))
			}
			return nil
		},
	}
}
