package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromAppliesDefaults(t *testing.T) {
	cfg, err := LoadFrom(writeConfig(t, `
[log]
level = "debug"
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug, got %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "console" {
		t.Errorf("expected console format, got %q", cfg.Log.Format)
	}
	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("expected sqlite3 driver, got %q", cfg.Database.Driver)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected :8080, got %q", cfg.Server.Addr)
	}
	if cfg.Store.HistoryLimit != 100 {
		t.Errorf("expected history limit 100, got %d", cfg.Store.HistoryLimit)
	}
	if cfg.Redis.TTL() != 5*time.Minute {
		t.Errorf("expected 5m ttl, got %v", cfg.Redis.TTL())
	}
}

func TestLoadFromFullFile(t *testing.T) {
	cfg, err := LoadFrom(writeConfig(t, `
[database]
driver = "mysql"
host = "db.internal"
user = "pages"
password = "p@ss:word"
name = "kitt"

[server]
addr = "127.0.0.1:9000"

[redis]
url = "redis://localhost:6379/1"
preview_ttl = "90s"

[store]
history_limit = 20
owner = "alice"
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dsn := cfg.Database.ConnString()
	if !strings.Contains(dsn, "tcp(db.internal:3306)") || !strings.HasSuffix(strings.Split(dsn, "?")[0], "/kitt") {
		t.Errorf("unexpected dsn %q", dsn)
	}
	if cfg.Redis.TTL() != 90*time.Second {
		t.Errorf("expected 90s, got %v", cfg.Redis.TTL())
	}
	if cfg.Store.HistoryLimit != 20 || cfg.Store.Owner != "alice" {
		t.Errorf("unexpected store config %+v", cfg.Store)
	}
}

func TestLoadFromRejectsUnknownKeysAndDrivers(t *testing.T) {
	if _, err := LoadFrom(writeConfig(t, "[database]\nengine = \"pg\"\n")); err == nil {
		t.Error("expected error for unknown key")
	}
	if _, err := LoadFrom(writeConfig(t, "[database]\ndriver = \"postgres\"\n")); err == nil {
		t.Error("expected error for unsupported driver")
	}
	if _, err := LoadFrom(writeConfig(t, "not = [valid")); err == nil {
		t.Error("expected parse error")
	}
}

func TestConnStringPrefersDSN(t *testing.T) {
	d := DatabaseConfig{Driver: "sqlite3", DSN: ":memory:"}
	if got := d.ConnString(); got != ":memory:" {
		t.Errorf("expected :memory:, got %q", got)
	}
	if got := (DatabaseConfig{Driver: "sqlite3"}).ConnString(); !strings.HasSuffix(got, "pages.db") {
		t.Errorf("expected default sqlite path, got %q", got)
	}
}
