package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, "jwt:\n  secret: test-secret\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Listen != ":8317" {
		t.Fatalf("expected default listen, got %q", cfg.Server.Listen)
	}
	if cfg.Database.DSN != "data/crmauto.db" {
		t.Fatalf("expected default dsn, got %q", cfg.Database.DSN)
	}
	if cfg.JWT.Expiry() != 24*time.Hour {
		t.Fatalf("expected default expiry, got %s", cfg.JWT.Expiry())
	}
	if cfg.Automation.Interval() != 24*time.Hour {
		t.Fatalf("expected default scan interval, got %s", cfg.Automation.Interval())
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	path := writeConfigFile(t, "server:\n  listen: \":9000\"\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing jwt secret")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, "jwt:\n  secret: file-secret\ndatabase:\n  dsn: file.db\n")

	t.Setenv("CRMAUTO_DSN", "env.db")
	t.Setenv("CRMAUTO_LISTEN", ":7000")
	t.Setenv("CRMAUTO_JWT_SECRET", "env-secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.DSN != "env.db" {
		t.Fatalf("expected env dsn, got %q", cfg.Database.DSN)
	}
	if cfg.Server.Listen != ":7000" {
		t.Fatalf("expected env listen, got %q", cfg.Server.Listen)
	}
	if cfg.JWT.Secret != "env-secret" {
		t.Fatalf("expected env secret, got %q", cfg.JWT.Secret)
	}
}

func TestAutomationIntervalParsing(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"", 24 * time.Hour},
		{"6h", 6 * time.Hour},
		{"30m", 30 * time.Minute},
		{"garbage", 24 * time.Hour},
		{"-1h", 24 * time.Hour},
	}
	for _, tc := range cases {
		cfg := AutomationConfig{ScanInterval: tc.raw}
		if got := cfg.Interval(); got != tc.want {
			t.Fatalf("interval %q: expected %s, got %s", tc.raw, tc.want, got)
		}
	}
}
