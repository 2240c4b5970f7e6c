// Package config loads runtime configuration for the tasksync CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file selected via -c or -config. Files ending in
//     .toml are read as TOML, anything else as JSON.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   sync server address
//	-k string   bearer token
//	-t string   transport (http or grpc)
//	-i int      sync interval (seconds, 0 = manual only)
//	-f string   local database path
//	-l string   log file path
//
// # File schema
//
// Durations use timex.Duration, so they are written as strings like "30s":
//
//	{
//	  "database": "/home/me/.local/share/tasksync/tasks.db",
//	  "sync": {
//	    "enabled": true,
//	    "server": "http://127.0.0.1:8080",
//	    "token": "...",
//	    "interval_secs": 300,
//	    "timeout": "30s"
//	  }
//	}
//
// Watch reloads the file when it changes so that a new token takes effect
// without restarting the client.
package config
