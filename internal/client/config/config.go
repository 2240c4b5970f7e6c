package config

import (
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/tasksync/internal/filex"
)

// Config holds runtime settings for the tasksync CLI.
//
// Fields:
//   - ServerURL: sync server address; http(s) URL or host:port for gRPC.
//   - Token: bearer token issued by tokenctl.
//   - Transport: "http" or "grpc".
//   - SyncEnabled: false turns background and manual sync off.
//   - SyncInterval: pause between background rounds; zero means manual only.
//   - RoundTimeout: upper bound for one sync round.
//   - RetryBaseDelay: first backoff step after a transient failure.
//   - DatabasePath / LogFile: local files.
//   - ConfigFile: the file the config was read from, if any.
type Config struct {
	ServerURL      string
	Token          string
	Transport      string
	SyncEnabled    bool
	SyncInterval   time.Duration
	RoundTimeout   time.Duration
	RetryBaseDelay time.Duration
	DatabasePath   string
	LogFile        string
	LogLevel       string
	ConfigFile     string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	dir := filex.DefaultDataDir()

	c.ServerURL = ""
	c.Token = ""
	c.Transport = "http"
	c.SyncEnabled = true
	c.SyncInterval = 300 * time.Second
	c.RoundTimeout = 30 * time.Second
	c.RetryBaseDelay = 5 * time.Second
	c.DatabasePath = filepath.Join(dir, "tasks.db")
	c.LogFile = filepath.Join(dir, "tasksync.log")
	c.LogLevel = "info"
}

// Configured reports whether sync has everything it needs to run.
func (c *Config) Configured() bool {
	return c.SyncEnabled && c.ServerURL != "" && c.Token != ""
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// the config file (if present) and command-line flags (if present). Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	parseFlags(cfg)
	return cfg
}

// Reload rebuilds the config from path without panicking. It is used when
// the config file changes while the client runs; flags still win.
func Reload(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	fc, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	fc.apply(cfg)
	cfg.ConfigFile = path

	parseFlags(cfg)
	return cfg, nil
}
