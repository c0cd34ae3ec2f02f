package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/token-tracker/tracker/pkg/report"
	"github.com/token-tracker/tracker/pkg/sessionlog"
)

func newCostCmd(opts *rootOptions) *cobra.Command {
	var (
		asJSON  bool
		offline bool
	)

	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Estimate cost per model from session logs and LiteLLM pricing",
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

			records := sessionlog.NewReader(sessionlog.WithLogger(logger)).Read(cfg.SessionsDir)
			rep := report.Build(records, resolver)

			if asJSON {
				return writeJSON(os.Stdout, rep)
			}

			if len(rep.Models) == 0 && len(rep.Unpriced) == 0 {
				fmt.Printf("No usage found in %s.\n", cfg.SessionsDir)
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tPRICED AS\tMATCH\tINPUT\tCACHE READ\tOUTPUT\tCOST")
			for _, m := range rep.Models {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t$%.4f\n",
					m.Model, m.PricingKey, m.Strategy,
					humanize.Comma(m.Tokens.Input), humanize.Comma(m.Tokens.CacheRead),
					humanize.Comma(m.Tokens.Output+m.Tokens.Reasoning), m.Cost)
			}
			for _, r := range rep.Unpriced {
				fmt.Fprintf(w, "%s\t-\tnone\t%s\t%s\t%s\t-\n",
					r.Model, humanize.Comma(r.Input), humanize.Comma(r.CachedInput), humanize.Comma(r.Output+r.Reasoning))
			}
			fmt.Fprintf(w, "TOTAL\t\t\t\t\t%s\t$%.4f\n", humanize.Comma(rep.TotalTokens), rep.TotalCost)
			if err := w.Flush(); err != nil {
				return err
			}

			if len(rep.Unpriced) > 0 {
				logger.Warn("some models could not be priced", "count", len(rep.Unpriced))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.Flags().BoolVar(&offline, "offline", false, "skip the pricing download and use built-in family prices")
	return cmd
}
