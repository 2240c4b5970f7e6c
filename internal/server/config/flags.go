package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/tasksync/internal/flagx"
)

// serverFlags lists the flags parseFlags understands. tokenctl shares the
// -d and -s flags with the server.
var serverFlags = []string{"-a", "-g", "-d", "-s", "-t", "-m", "-k", "-u", "-p", "-b", "-r", "-e", "-i", "-l"}

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-g string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN, empty for the in-memory store
//	-s string   JWT HMAC secret key
//	-t int      token validity, hours (0 = no expiry)
//	-m int      max changes per sync request
//	-k int      max clock skew of change timestamps, minutes
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-r string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-i int      snapshot interval, minutes
//	-l string   log level
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], serverFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	tokenValidity := fs.Int("t", int(config.TokenValidityDuration.Hours()), "token validity (in hours, 0 = no expiry)")

	fs.IntVar(&config.MaxBatchSize, "m", config.MaxBatchSize, "max changes per sync request")
	clockSkew := fs.Int("k", int(config.MaxClockSkew.Minutes()), "max clock skew of change timestamps (in minutes)")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket for snapshots")
	fs.StringVar(&config.S3Region, "r", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	backupInterval := fs.Int("i", int(config.BackupInterval.Minutes()), "snapshot interval (in minutes)")

	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.TokenValidityDuration = time.Duration(*tokenValidity) * time.Hour
	config.BackupInterval = time.Duration(*backupInterval) * time.Minute
	config.MaxClockSkew = time.Duration(*clockSkew) * time.Minute
}
