package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/token-tracker/tracker/pkg/models"
	"github.com/token-tracker/tracker/pkg/report"
	"github.com/token-tracker/tracker/pkg/sessionlog"
)

func newGraphCmd(opts *rootOptions) *cobra.Command {
	var (
		since   string
		until   string
		fromDB  bool
		offline bool
		output  string
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Emit daily contribution graph data as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			end := time.Now().UTC()
			if until != "" {
				if end, err = time.Parse(time.DateOnly, until); err != nil {
					return fmt.Errorf("invalid --until (use YYYY-MM-DD): %w", err)
				}
			}
			var start time.Time
			switch {
			case since != "":
				if start, err = time.Parse(time.DateOnly, since); err != nil {
					return fmt.Errorf("invalid --since (use YYYY-MM-DD): %w", err)
				}
			case cfg.Graph.Days > 0:
				start = end.AddDate(0, 0, -(cfg.Graph.Days - 1))
			}
			if !start.IsZero() && start.After(end) {
				return fmt.Errorf("--since %s is after --until %s", start.Format(time.DateOnly), end.Format(time.DateOnly))
			}

			var daily []models.DailyUsage
			if fromDB {
				tr, err := openTracker(cfg)
				if err != nil {
					return err
				}
				defer tr.Close()
				if daily, err = tr.Daily(cmd.Context(), start, end); err != nil {
					return err
				}
			} else {
				daily = sessionlog.NewReader(sessionlog.WithLogger(logger)).ReadDaily(cfg.SessionsDir)
			}

			resolver, closeResolver, err := newResolver(cfg, logger, offline)
			if err != nil {
				return err
			}
			defer closeResolver()
			if err := loadPricing(cmd.Context(), resolver); err != nil {
				return fmt.Errorf("%w (rerun with --offline to use built-in prices)", err)
			}

			graph := report.Graph(daily, resolver, report.GraphOptions{Since: start, Until: end})

			if output != "" {
				err = writeJSONFile(output, graph)
			} else {
				err = writeJSON(os.Stdout, graph)
			}
			if err != nil {
				return err
			}
			logger.Debug("graph generated",
				"days", graph.Summary.TotalDays, "active", graph.Summary.ActiveDays, "cost", graph.Summary.TotalCost)
			return nil
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "first day YYYY-MM-DD (default: graph.days before --until)")
	cmd.Flags().StringVar(&until, "until", "", "last day YYYY-MM-DD (default: today)")
	cmd.Flags().BoolVar(&fromDB, "from-db", false, "read daily usage from the history database instead of scanning")
	cmd.Flags().BoolVar(&offline, "offline", false, "skip the pricing download and use built-in family prices")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write JSON to a file instead of stdout")
	return cmd
}
