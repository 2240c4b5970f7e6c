package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dmitrijs2005/tasksync/internal/flagx"
	"github.com/dmitrijs2005/tasksync/internal/timex"
)

// FileConfig is the on-disk shape of the client config, in JSON or TOML.
// Fields left out of the file keep their current value.
//
//	[sync]
//	enabled = true
//	server = "http://127.0.0.1:8080"
//	token = "..."
//	interval_secs = 300
type FileConfig struct {
	Sync     *SyncSection `json:"sync" toml:"sync"`
	Database *string      `json:"database" toml:"database"`
	LogFile  *string      `json:"log_file" toml:"log_file"`
	LogLevel *string      `json:"log_level" toml:"log_level"`
}

type SyncSection struct {
	Enabled      *bool           `json:"enabled" toml:"enabled"`
	Server       *string         `json:"server" toml:"server"`
	Token        *string         `json:"token" toml:"token"`
	Transport    *string         `json:"transport" toml:"transport"`
	IntervalSecs *int            `json:"interval_secs" toml:"interval_secs"`
	Timeout      *timex.Duration `json:"timeout" toml:"timeout"`
	RetryBase    *timex.Duration `json:"retry_base_delay" toml:"retry_base_delay"`
}

// LoadFile reads path as TOML when it ends in .toml and as JSON otherwise.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	fc := &FileConfig{}
	switch flagx.FormatOf(path) {
	case flagx.FormatTOML:
		if _, err := toml.Decode(string(data), fc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, fc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return fc, nil
}

// parseFile overlays the file named by -c/-config onto cfg. Unreadable or
// invalid files panic, as flag errors do.
func parseFile(cfg *Config) {
	path := flagx.ConfigFileFlag(os.Args[1:])
	if path == "" {
		return
	}

	fc, err := LoadFile(path)
	if err != nil {
		panic(err)
	}

	fc.apply(cfg)
	cfg.ConfigFile = path
}

func (fc *FileConfig) apply(cfg *Config) {
	setString(&cfg.DatabasePath, fc.Database)
	setString(&cfg.LogFile, fc.LogFile)
	setString(&cfg.LogLevel, fc.LogLevel)

	s := fc.Sync
	if s == nil {
		return
	}
	if s.Enabled != nil {
		cfg.SyncEnabled = *s.Enabled
	}
	setString(&cfg.ServerURL, s.Server)
	setString(&cfg.Token, s.Token)
	setString(&cfg.Transport, s.Transport)
	if s.IntervalSecs != nil {
		cfg.SyncInterval = time.Duration(*s.IntervalSecs) * time.Second
	}
	if s.Timeout != nil {
		cfg.RoundTimeout = s.Timeout.Duration
	}
	if s.RetryBase != nil {
		cfg.RetryBaseDelay = s.RetryBase.Duration
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
