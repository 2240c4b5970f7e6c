package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	orig := os.Args
	t.Cleanup(func() { os.Args = orig })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "all flags", args: []string{"cmd",
			"-a", "127.0.0.1:8081", "-g", "127.0.0.1:9090", "-d", "db", "-s", "secret",
			"-t", "24", "-m", "50", "-k", "90", "-u", "user", "-p", "password", "-b", "bucket", "-r", "us-west-1",
			"-e", "http://endpoint", "-i", "15", "-l", "debug",
		},
			expected: &Config{
				EndpointAddrHTTP:      "127.0.0.1:8081",
				EndpointAddrGRPC:      "127.0.0.1:9090",
				DatabaseDSN:           "db",
				SecretKey:             "secret",
				TokenValidityDuration: 24 * time.Hour,
				MaxBatchSize:          50,
				MaxClockSkew:          90 * time.Minute,
				S3RootUser:            "user",
				S3RootPassword:        "password",
				S3Bucket:              "bucket",
				S3Region:              "us-west-1",
				S3BaseEndpoint:        "http://endpoint",
				BackupInterval:        15 * time.Minute,
				LogLevel:              "debug",
			}},
		{name: "unknown flags ignored", args: []string{"cmd", "-z", "1", "-c", "conf.json"},
			expected: &Config{}},
		{name: "bad int panics", args: []string{"cmd", "-m", "many"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			config := &Config{}

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config) })
				return
			}
			require.NotPanics(t, func() { parseFlags(config) })
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
