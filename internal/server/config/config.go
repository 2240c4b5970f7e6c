// Package config handles configuration for the server component,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// DefaultMaxClockSkew bounds change timestamps when no skew is configured.
const DefaultMaxClockSkew = 24 * time.Hour

// Config holds runtime settings for the tasksync server.
//
// Fields:
//   - EndpointAddrHTTP / EndpointAddrGRPC: bind addresses; an empty value disables that transport.
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty selects the in-memory store.
//   - SecretKey: HMAC secret for signing bearer tokens (HS256). Do not use the default in prod.
//   - TokenValidityDuration: lifetime of issued tokens, zero for no expiry.
//   - MaxBatchSize: largest accepted number of changes per sync request.
//   - MaxClockSkew: how far past the server clock a change timestamp may be.
//   - S3*: object storage used for account snapshots; an empty bucket disables them.
//   - BackupInterval: how often snapshots are taken.
type Config struct {
	EndpointAddrHTTP      string
	EndpointAddrGRPC      string
	DatabaseDSN           string
	SecretKey             string
	TokenValidityDuration time.Duration
	MaxBatchSize          int
	MaxClockSkew          time.Duration
	S3RootUser            string
	S3RootPassword        string
	S3Bucket              string
	S3Region              string
	S3BaseEndpoint        string
	BackupInterval        time.Duration
	LogLevel              string
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.EndpointAddrHTTP = ":8080"
	c.EndpointAddrGRPC = ":50051"
	c.DatabaseDSN = ""
	c.SecretKey = "secretKey"
	c.TokenValidityDuration = 0
	c.MaxBatchSize = 1000
	c.MaxClockSkew = DefaultMaxClockSkew
	c.S3RootUser = ""
	c.S3RootPassword = ""
	c.S3Bucket = ""
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = ""
	c.BackupInterval = 60 * time.Minute
	c.LogLevel = "info"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
