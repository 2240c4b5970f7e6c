package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/tasksync/internal/logging"
	"github.com/stretchr/testify/require"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	dir := t.TempDir()
	path := filepath.Join(dir, "c.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sync":{"token":"one"}}`), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	require.NoError(t, Watch(ctx, path, logging.Discard(), func(c *Config) { got <- c }))

	// unrelated files in the same directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{}`), 0o600))
	require.NoError(t, os.WriteFile(path, []byte(`{"sync":{"token":"two"}}`), 0o600))

	select {
	case c := <-got:
		require.Equal(t, "two", c.Token)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "c.json"), logging.Discard(), func(*Config) {})
	require.Error(t, err)
}
