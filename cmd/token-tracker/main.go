package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/token-tracker/tracker/pkg/config"
)

var version = "dev"

// defaultConfigFile is read when --config is not given and the file exists.
const defaultConfigFile = "token-tracker.yaml"

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath  string
	sessionsDir string
	verbose     bool
}

func main() {
	// A missing .env is normal.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "token-tracker",
		Short:         "Token usage and cost tracking for AI coding assistant session logs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file (default ./"+defaultConfigFile+" if present)")
	root.PersistentFlags().StringVar(&opts.sessionsDir, "sessions-dir", "", "sessions directory (default $CODEX_HOME/sessions)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newUsageCmd(opts),
		newCostCmd(opts),
		newGraphCmd(opts),
		newPricingCmd(opts),
		newStatsCmd(opts),
		newBudgetCmd(opts),
		newCacheCmd(opts),
		newMCPCmd(opts),
	)
	return root
}

// load resolves the configuration, applies flag overrides and installs the
// process logger.
func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if o.sessionsDir != "" {
		cfg.SessionsDir = o.sessionsDir
	}

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := newLogger(level)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	if o.configPath != "" {
		return config.Load(o.configPath)
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return config.Load(defaultConfigFile)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat config: %w", err)
	}
	return config.Default(), nil
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    os.Getenv("NO_COLOR") != "",
	}))
}

// ensureDir creates the parent directory of a database path.
func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}
