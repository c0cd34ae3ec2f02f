package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/token-tracker/tracker/pkg/budget"
	"github.com/token-tracker/tracker/pkg/config"
	"github.com/token-tracker/tracker/pkg/mcp"
	"github.com/token-tracker/tracker/pkg/pricing"
	"github.com/token-tracker/tracker/pkg/sessionlog"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve usage and pricing tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			deps, closeDeps, err := newMCPDeps(cfg, logger, offline)
			if err != nil {
				return err
			}
			defer closeDeps()

			logger.Info("mcp server starting", "sessions", cfg.SessionsDir, "db", cfg.DBPath)
			return mcp.New(deps, version).Run(cmd.Context(), os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "skip the pricing download and use built-in family prices")
	return cmd
}

// newMCPDeps opens the tracker and the snapshot cache once. The resolver
// reads through the same cache instance the pricing cache tool reports on.
func newMCPDeps(cfg *config.Config, logger *slog.Logger, offline bool) (mcp.Deps, func(), error) {
	tr, err := openTracker(cfg)
	if err != nil {
		return mcp.Deps{}, nil, err
	}
	c, err := openCache(cfg)
	if err != nil {
		_ = tr.Close()
		return mcp.Deps{}, nil, err
	}

	var store pricing.SnapshotStore
	if cfg.Pricing.CacheTTL > 0 {
		store = c
	}

	deps := mcp.Deps{
		Tracker:     tr,
		Pricer:      buildResolver(cfg, logger, offline, store),
		Usage:       sessionlog.NewReader(sessionlog.WithLogger(logger)),
		SessionsDir: cfg.SessionsDir,
		Cache:       c,
		Logger:      logger,
	}
	if cfg.Budget.Enabled {
		deps.Enforcer = budget.New(cfg.Budget.Policies, tr)
	}

	closeFn := func() {
		_ = c.Close()
		_ = tr.Close()
	}
	return deps, closeFn, nil
}
