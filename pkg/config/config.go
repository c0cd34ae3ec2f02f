package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/token-tracker/tracker/pkg/models"
	"github.com/token-tracker/tracker/pkg/pricing"
)

// Environment variables consulted by Default.
const (
	EnvCodexHome = "CODEX_HOME"
	EnvDBPath    = "TOKEN_TRACKER_DB"
)

// Config holds all token-tracker configuration.
type Config struct {
	SessionsDir string        `yaml:"sessions_dir"`
	DBPath      string        `yaml:"db_path"`
	LogLevel    string        `yaml:"log_level"`
	Pricing     PricingConfig `yaml:"pricing"`
	Budget      BudgetConfig  `yaml:"budget"`
	Graph       GraphConfig   `yaml:"graph"`
}

// PricingConfig controls the pricing dataset fetch and its on-disk cache.
type PricingConfig struct {
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Offline  bool          `yaml:"offline"`
}

// BudgetConfig controls budget enforcement.
type BudgetConfig struct {
	Enabled  bool                  `yaml:"enabled"`
	Policies []models.BudgetPolicy `yaml:"policies"`
}

// GraphConfig controls the default contribution graph window.
type GraphConfig struct {
	Days int `yaml:"days"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		SessionsDir: DefaultSessionsDir(),
		DBPath:      defaultDBPath(),
		LogLevel:    "info",
		Pricing: PricingConfig{
			URL:      pricing.DefaultURL,
			Timeout:  30 * time.Second,
			CacheTTL: 24 * time.Hour,
		},
		Budget: BudgetConfig{
			Enabled: false,
		},
		Graph: GraphConfig{
			Days: 365,
		},
	}
}

// DefaultSessionsDir is $CODEX_HOME/sessions, with CODEX_HOME defaulting to
// ~/.codex.
func DefaultSessionsDir() string {
	base := os.Getenv(EnvCodexHome)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		base = filepath.Join(home, ".codex")
	}
	return filepath.Join(base, "sessions")
}

func defaultDBPath() string {
	if p := os.Getenv(EnvDBPath); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "token-tracker.db"
	}
	return filepath.Join(home, ".token-tracker", "tracker.db")
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Pricing.Timeout < 0 {
		return fmt.Errorf("invalid config: pricing.timeout must not be negative")
	}
	if c.Graph.Days < 0 {
		return fmt.Errorf("invalid config: graph.days must not be negative")
	}
	for i, p := range c.Budget.Policies {
		if p.MaxTokens <= 0 {
			return fmt.Errorf("invalid config: budget.policies[%d].max_tokens must be positive", i)
		}
		switch p.Period {
		case models.BudgetDaily, models.BudgetMonthly:
		default:
			return fmt.Errorf("invalid config: budget.policies[%d].period %q (want daily or monthly)", i, p.Period)
		}
	}
	return nil
}

// ParseLevel maps a log_level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid config: log_level %q", s)
	}
}
