// Package config handles kittpages configuration.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-sql-driver/mysql"
)

// Config is the kittpages configuration file.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Redis    RedisConfig    `toml:"redis"`
	Store    StoreConfig    `toml:"store"`
	Log      LogConfig      `toml:"log"`
}

// DatabaseConfig selects the SQL backend.
type DatabaseConfig struct {
	// Driver is "sqlite3" or "mysql".
	Driver string `toml:"driver"`

	// DSN is used as-is when set. For sqlite3 it is a file path or ":memory:".
	DSN string `toml:"dsn"`

	// Host, User, Password and Name build a MySQL DSN when DSN is empty.
	Host     string `toml:"host"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Name     string `toml:"name"`
}

// ConnString returns the DSN for the configured driver.
func (d DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Driver != "mysql" {
		return DefaultSQLitePath()
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port when host has none.
func ensurePort(host, defaultPort string) string {
	if host == "" {
		host = "localhost"
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// ServerConfig configures `kittpages serve`.
type ServerConfig struct {
	// Addr is the listen address (default ":8080").
	Addr string `toml:"addr"`

	// BaseURL prefixes preview links printed by the CLI.
	BaseURL string `toml:"base_url"`
}

// RedisConfig configures the published preview cache. An empty URL
// disables caching.
type RedisConfig struct {
	URL string `toml:"url"`

	// PreviewTTL is a Go duration string (default "5m").
	PreviewTTL string `toml:"preview_ttl"`
}

// TTL parses PreviewTTL, falling back to five minutes.
func (r RedisConfig) TTL() time.Duration {
	if d, err := time.ParseDuration(r.PreviewTTL); err == nil && d > 0 {
		return d
	}
	return 5 * time.Minute
}

// StoreConfig configures the document tree store.
type StoreConfig struct {
	// HistoryLimit is the number of undo steps kept (default 100).
	HistoryLimit int `toml:"history_limit"`

	// Owner is written as owner_id on created documents.
	Owner string `toml:"owner"`

	// Remote is the base URL of a `kittpages serve` instance. When set the
	// CLI talks to it instead of opening the database.
	Remote string `toml:"remote"`
}

// LogConfig configures the zerolog logger.
type LogConfig struct {
	// Level is debug, info, warn or error (default "info").
	Level string `toml:"level"`

	// Format is "console" or "json" (default "console").
	Format string `toml:"format"`
}

// Defaults returns a config with every default applied.
func Defaults() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Redis.PreviewTTL == "" {
		c.Redis.PreviewTTL = "5m"
	}
	if c.Store.HistoryLimit <= 0 {
		c.Store.HistoryLimit = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Load loads the configuration from the default location.
// Returns the defaults if the file doesn't exist.
func Load() (*Config, error) {
	path := DefaultPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Defaults(), nil
	}
	return LoadFrom(path)
}

// LoadFrom loads the configuration from a specific path.
func LoadFrom(path string) (*Config, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config %s: unknown key %q", path, undecoded[0].String())
	}
	cfg.applyDefaults()
	if cfg.Database.Driver != "sqlite3" && cfg.Database.Driver != "mysql" {
		return nil, fmt.Errorf("config %s: unsupported database driver %q", path, cfg.Database.Driver)
	}
	return &cfg, nil
}

// DefaultPath returns ~/.config/kittpages/config.toml, falling back to the
// OS config dir.
func DefaultPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		xdgPath := filepath.Join(home, ".config", "kittpages", "config.toml")
		if _, err := os.Stat(xdgPath); err == nil {
			return xdgPath
		}
	}
	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "kittpages", "config.toml")
	}
	return filepath.Join(".", "config.toml")
}

// DefaultSQLitePath is the database file used when no DSN is configured.
func DefaultSQLitePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "kittpages", "pages.db")
	}
	return "pages.db"
}
