package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newCacheCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the pricing snapshot cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cached pricing snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			c, err := openCache(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			stats, err := c.Stats()
			if err != nil {
				return err
			}
			fmt.Printf("Entries: %d\nTTL:     %s\n", stats.Entries, cfg.Pricing.CacheTTL)

			snaps, err := c.List()
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				return nil
			}
			fmt.Println()
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "URL\tSIZE\tFETCHED\tDIGEST\tSTATUS")
			for _, s := range snaps {
				status := "fresh"
				if s.Expired {
					status = "expired"
				}
				digest := s.Digest
				if len(digest) > 12 {
					digest = digest[:12]
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					s.URL, humanize.Bytes(uint64(s.Size)), humanize.Time(s.FetchedAt), digest, status)
			}
			return w.Flush()
		},
	}

	var expiredOnly bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cached pricing snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			c, err := openCache(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			n, err := c.Clear(expiredOnly)
			if err != nil {
				return err
			}
			if expiredOnly {
				fmt.Printf("Cleared %d expired snapshot(s).\n", n)
			} else {
				fmt.Printf("Cleared %d snapshot(s).\n", n)
			}
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&expiredOnly, "expired", false, "only clear expired snapshots")

	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}
