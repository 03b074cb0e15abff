package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Database.Path != "data/fundwatch.db" {
		t.Fatalf("unexpected database path %q", cfg.Database.Path)
	}
	if cfg.Scheduler.CronSpec != "0 9-17 * * 1-5" {
		t.Fatalf("unexpected cron spec %q", cfg.Scheduler.CronSpec)
	}
	if cfg.Scheduler.Timezone != "Europe/Amsterdam" {
		t.Fatalf("unexpected timezone %q", cfg.Scheduler.Timezone)
	}
	if cfg.Transport.RequestTimeout != 15*time.Second {
		t.Fatalf("unexpected request timeout %s", cfg.Transport.RequestTimeout)
	}
	if cfg.History.DefaultLimit != 10 {
		t.Fatalf("unexpected history limit %d", cfg.History.DefaultLimit)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
database:
  path: /tmp/test.db
  busy_timeout: 2s
scheduler:
  cron_spec: "30 10 * * *"
  run_on_start: true
discord:
  token: test-token
  guild_id: guild-1
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Fatalf("unexpected database path %q", cfg.Database.Path)
	}
	if cfg.Database.BusyTimeout != 2*time.Second {
		t.Fatalf("unexpected busy timeout %s", cfg.Database.BusyTimeout)
	}
	if cfg.Scheduler.CronSpec != "30 10 * * *" {
		t.Fatalf("unexpected cron spec %q", cfg.Scheduler.CronSpec)
	}
	if !cfg.Scheduler.RunOnStart {
		t.Fatal("run_on_start should be true")
	}
	if cfg.Discord.Token != "test-token" || cfg.Discord.GuildID != "guild-1" {
		t.Fatalf("unexpected discord config %+v", cfg.Discord)
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	cfg.Scheduler.Timezone = "Mars/Olympus"
	if err := cfg.Validate(); err == nil {
		t.Fatal("bogus timezone should fail validation")
	}

	cfg.Scheduler.Timezone = ""
	if cfg.Location() != time.UTC {
		t.Fatal("empty timezone should fall back to UTC")
	}

	cfg.History.DefaultLimit = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero history limit should fail validation")
	}
}

func TestResolveHistoryLimit(t *testing.T) {
	cfg := &Config{History: HistoryConfig{DefaultLimit: 10}}

	if got := cfg.ResolveHistoryLimit(0); got != 10 {
		t.Fatalf("expected default, got %d", got)
	}
	if got := cfg.ResolveHistoryLimit(25); got != 25 {
		t.Fatalf("expected override, got %d", got)
	}
}
