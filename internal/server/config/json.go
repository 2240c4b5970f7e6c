package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/tasksync/internal/flagx"
	"github.com/dmitrijs2005/tasksync/internal/timex"
)

// JsonConfig is the on-disk shape of the server config file. Durations use
// timex.Duration so both "90m" and integer nanoseconds are accepted. Fields
// left out of the file keep their current value.
type JsonConfig struct {
	EndpointAddrHTTP      *string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC      *string         `json:"endpoint_addr_grpc"`
	DatabaseDSN           *string         `json:"database_dsn"`
	SecretKey             *string         `json:"secret_key"`
	TokenValidityDuration *timex.Duration `json:"token_validity_duration"`
	MaxBatchSize          *int            `json:"max_batch_size"`
	MaxClockSkew          *timex.Duration `json:"max_clock_skew"`
	S3RootUser            *string         `json:"s3_root_user"`
	S3RootPassword        *string         `json:"s3_root_password"`
	S3Bucket              *string         `json:"s3_bucket"`
	S3Region              *string         `json:"s3_region"`
	S3BaseEndpoint        *string         `json:"s3_base_endpoint"`
	BackupInterval        *timex.Duration `json:"backup_interval"`
	LogLevel              *string         `json:"log_level"`
}

// parseJson overlays the file named by -c/-config onto config. Missing
// file flag means nothing to do; unreadable or invalid files panic, as
// flag errors do.
func parseJson(config *Config) {
	path := flagx.ConfigFileFlag(os.Args[1:])
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	if c.TokenValidityDuration != nil {
		config.TokenValidityDuration = c.TokenValidityDuration.Duration
	}
	if c.MaxBatchSize != nil {
		config.MaxBatchSize = *c.MaxBatchSize
	}
	if c.MaxClockSkew != nil {
		config.MaxClockSkew = c.MaxClockSkew.Duration
	}
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	if c.BackupInterval != nil {
		config.BackupInterval = c.BackupInterval.Duration
	}
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
