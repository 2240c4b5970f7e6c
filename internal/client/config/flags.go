package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/tasksync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   sync server address
//	-k string   bearer token
//	-t string   transport, http or grpc
//	-i int      sync interval in seconds, 0 for manual only
//	-f string   local database path
//	-l string   log file path
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	// Filter args to include only those handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-k", "-t", "-i", "-f", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "sync server address")
	fs.StringVar(&cfg.Token, "k", cfg.Token, "bearer token")
	fs.StringVar(&cfg.Transport, "t", cfg.Transport, "transport (http or grpc)")
	syncInterval := fs.Int("i", int(cfg.SyncInterval.Seconds()), "sync interval (in seconds, 0 = manual only)")
	fs.StringVar(&cfg.DatabasePath, "f", cfg.DatabasePath, "local database path")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "log file path")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.SyncInterval = time.Duration(*syncInterval) * time.Second
}
