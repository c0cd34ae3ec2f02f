package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/token-tracker/tracker/pkg/pricing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	t.Setenv(EnvCodexHome, "/opt/codex")
	t.Setenv(EnvDBPath, "/var/lib/tt.db")

	cfg := Default()
	if cfg.SessionsDir != filepath.Join("/opt/codex", "sessions") {
		t.Errorf("expected sessions under CODEX_HOME, got %s", cfg.SessionsDir)
	}
	if cfg.DBPath != "/var/lib/tt.db" {
		t.Errorf("expected db path from env, got %s", cfg.DBPath)
	}
	if cfg.Pricing.URL != pricing.DefaultURL {
		t.Errorf("expected default pricing url, got %s", cfg.Pricing.URL)
	}
	if cfg.Pricing.CacheTTL != 24*time.Hour {
		t.Errorf("expected 24h TTL, got %v", cfg.Pricing.CacheTTL)
	}
}

func TestDefaultSessionsDirWithoutCodexHome(t *testing.T) {
	t.Setenv(EnvCodexHome, "")
	t.Setenv("HOME", "/home/dev")

	want := filepath.Join("/home/dev", ".codex", "sessions")
	if got := DefaultSessionsDir(); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_LOGS", "/data/logs")

	path := writeConfig(t, `
sessions_dir: ${TEST_LOGS}
db_path: "test.db"
log_level: debug
pricing:
  timeout: 5s
  cache_ttl: 30m
  offline: true
budget:
  enabled: true
  policies:
    - model: "*"
      max_tokens: 500000
      period: daily
graph:
  days: 90
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.SessionsDir != "/data/logs" {
		t.Errorf("env var not expanded: got %s", cfg.SessionsDir)
	}
	if cfg.Pricing.URL != pricing.DefaultURL {
		t.Errorf("unset keys should keep defaults, got %s", cfg.Pricing.URL)
	}
	if cfg.Pricing.CacheTTL != 30*time.Minute {
		t.Errorf("expected 30m TTL, got %v", cfg.Pricing.CacheTTL)
	}
	if cfg.Pricing.Timeout != 5*time.Second || !cfg.Pricing.Offline {
		t.Errorf("unexpected pricing config: %+v", cfg.Pricing)
	}
	if !cfg.Budget.Enabled {
		t.Error("expected budget enabled")
	}
	if len(cfg.Budget.Policies) != 1 {
		t.Fatalf("expected 1 policy, got %d", len(cfg.Budget.Policies))
	}
	if cfg.Budget.Policies[0].MaxTokens != 500000 {
		t.Errorf("expected 500000 max tokens, got %d", cfg.Budget.Policies[0].MaxTokens)
	}
	if cfg.Graph.Days != 90 {
		t.Errorf("expected 90 days, got %d", cfg.Graph.Days)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"log level": "log_level: loud\n",
		"period":    "budget:\n  policies:\n    - max_tokens: 10\n      period: weekly\n",
		"max":       "budget:\n  policies:\n    - max_tokens: 0\n      period: daily\n",
		"days":      "graph:\n  days: -1\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	if err != nil || lvl != slog.LevelDebug {
		t.Errorf("expected debug, got %v (%v)", lvl, err)
	}
	lvl, err = ParseLevel("")
	if err != nil || lvl != slog.LevelInfo {
		t.Errorf("expected info default, got %v (%v)", lvl, err)
	}
}
