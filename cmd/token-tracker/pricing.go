package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/token-tracker/tracker/pkg/pricing"
)

// pricingRow is the JSON shape of one lookup.
type pricingRow struct {
	Model    string           `json:"model"`
	Found    bool             `json:"found"`
	Key      string           `json:"key,omitempty"`
	Strategy pricing.Strategy `json:"strategy,omitempty"`
	Entry    *pricing.Entry   `json:"pricing,omitempty"`
}

func newPricingCmd(opts *rootOptions) *cobra.Command {
	var (
		asJSON  bool
		offline bool
	)

	cmd := &cobra.Command{
		Use:   "pricing <model>...",
		Short: "Show the per-token prices a model id resolves to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			resolver, closeResolver, err := newResolver(cfg, logger, offline)
			if err != nil {
				return err
			}
			defer closeResolver()
			if err := loadPricing(cmd.Context(), resolver); err != nil {
				return fmt.Errorf("%w (rerun with --offline to use built-in prices)", err)
			}

			rows := make([]pricingRow, 0, len(args))
			for _, model := range args {
				row := pricingRow{Model: model}
				if m, ok := resolver.Lookup(model); ok {
					entry := m.Entry
					row.Found = true
					row.Key = m.Key
					row.Strategy = m.Strategy
					row.Entry = &entry
				}
				rows = append(rows, row)
			}

			if asJSON {
				return writeJSON(os.Stdout, rows)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tMATCHED\tSTRATEGY\tINPUT/1M\tOUTPUT/1M\tCACHE READ/1M\tCACHE WRITE/1M")
			for _, r := range rows {
				if !r.Found {
					fmt.Fprintf(w, "%s\t-\tnone\t-\t-\t-\t-\n", r.Model)
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.Model, r.Key, r.Strategy,
					rate(r.Entry.InputCostPerToken), rate(r.Entry.OutputCostPerToken),
					rate(r.Entry.CacheReadCostPerToken), rate(r.Entry.CacheWriteCostPerToken))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.Flags().BoolVar(&offline, "offline", false, "skip the pricing download and use built-in family prices")
	return cmd
}

// rate renders a per-token price in dollars per million tokens.
func rate(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("$%.4g", *v*1_000_000)
}
