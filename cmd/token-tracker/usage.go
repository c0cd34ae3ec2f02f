package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/token-tracker/tracker/pkg/budget"
	"github.com/token-tracker/tracker/pkg/models"
	"github.com/token-tracker/tracker/pkg/sessionlog"
)

func newUsageCmd(opts *rootOptions) *cobra.Command {
	var (
		asJSON bool
		record bool
		daily  bool
	)

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Scan session logs and show token usage per model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			started := time.Now().UTC()
			scan := sessionlog.NewReader(sessionlog.WithLogger(logger)).Scan(cfg.SessionsDir)
			logger.Debug("scan complete",
				"root", cfg.SessionsDir, "files", scan.Files, "lines", scan.Lines,
				"skipped", scan.SkippedLines, "unreadable", scan.UnreadableFiles)

			if record {
				tr, err := openTracker(cfg)
				if err != nil {
					return err
				}
				defer tr.Close()

				run, err := tr.RecordScan(cmd.Context(), models.ScanRun{
					Root:         cfg.SessionsDir,
					Files:        scan.Files,
					Lines:        scan.Lines,
					SkippedLines: scan.SkippedLines,
					Models:       len(scan.Records),
					Messages:     scan.Messages(),
					StartedAt:    started,
					FinishedAt:   time.Now().UTC(),
				}, scan.Daily)
				if err != nil {
					return err
				}
				logger.Info("recorded scan", "id", run.ID, "days", len(scan.Daily))

				if cfg.Budget.Enabled {
					warnBudgets(cmd, budget.New(cfg.Budget.Policies, tr), logger)
				}
			}

			if asJSON {
				if daily {
					return writeJSON(os.Stdout, scan.Daily)
				}
				return writeJSON(os.Stdout, scan.Records)
			}

			if len(scan.Records) == 0 {
				fmt.Printf("No usage found in %s.\n", cfg.SessionsDir)
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			if daily {
				fmt.Fprintln(w, "DAY\tMODEL\tMESSAGES\tINPUT\tCACHED\tOUTPUT\tREASONING")
				for _, d := range scan.Daily {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
						d.Day, d.Model, d.MessageCount,
						humanize.Comma(d.Input), humanize.Comma(d.CachedInput),
						humanize.Comma(d.Output), humanize.Comma(d.Reasoning))
				}
				return w.Flush()
			}

			fmt.Fprintln(w, "MODEL\tMESSAGES\tINPUT\tCACHED\tOUTPUT\tREASONING\tTOTAL")
			var total int64
			for _, r := range scan.Records {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
					r.Model, r.MessageCount,
					humanize.Comma(r.Input), humanize.Comma(r.CachedInput),
					humanize.Comma(r.Output), humanize.Comma(r.Reasoning),
					humanize.Comma(r.TotalTokens()))
				total += r.TotalTokens()
			}
			fmt.Fprintf(w, "\t\t\t\t\t\t%s\n", humanize.Comma(total))
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.Flags().BoolVar(&record, "record", false, "store the scan in the usage history database")
	cmd.Flags().BoolVar(&daily, "daily", false, "break usage down by day")
	return cmd
}

// warnBudgets logs every policy whose usage reached its limit.
func warnBudgets(cmd *cobra.Command, e *budget.Enforcer, logger *slog.Logger) {
	statuses, err := e.Status(cmd.Context(), "")
	if err != nil {
		logger.Warn("budget status unavailable", "error", err)
		return
	}
	for _, s := range statuses {
		if s.Used >= s.Policy.MaxTokens {
			model := s.Model
			if model == "" {
				model = "all models"
			}
			logger.Warn("budget exceeded", "model", model, "period", s.Policy.Period,
				"used", s.Used, "max", s.Policy.MaxTokens)
		}
	}
}
