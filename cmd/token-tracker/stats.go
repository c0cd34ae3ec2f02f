package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newStatsCmd(opts *rootOptions) *cobra.Command {
	var (
		since  string
		scans  bool
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show recorded token usage from the history database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}

			tr, err := openTracker(cfg)
			if err != nil {
				return err
			}
			defer tr.Close()

			ctx := cmd.Context()

			if scans {
				runs, err := tr.ListScans(ctx, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(os.Stdout, runs)
				}
				if len(runs) == 0 {
					fmt.Println("No scans recorded.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SCAN ID\tFINISHED\tROOT\tFILES\tLINES\tSKIPPED\tMODELS\tMESSAGES")
				for _, r := range runs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
						r.ID, humanize.Time(r.FinishedAt), r.Root, r.Files, r.Lines, r.SkippedLines, r.Models, r.Messages)
				}
				return w.Flush()
			}

			var from time.Time
			if since != "" {
				if from, err = time.Parse(time.DateOnly, since); err != nil {
					return fmt.Errorf("invalid --since (use YYYY-MM-DD): %w", err)
				}
			}

			records, err := tr.Summary(ctx, from)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(os.Stdout, records)
			}
			if len(records) == 0 {
				fmt.Println("No usage data found. Run 'token-tracker usage --record' first.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SOURCE\tMODEL\tMESSAGES\tINPUT\tCACHED\tOUTPUT\tREASONING\tTOTAL")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
					r.Source, r.Model, r.MessageCount, r.Input, r.CachedInput, r.Output, r.Reasoning, r.TotalTokens())
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "only include days on or after YYYY-MM-DD")
	cmd.Flags().BoolVar(&scans, "scans", false, "list recorded scans")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of scans to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
