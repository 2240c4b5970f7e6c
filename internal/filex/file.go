package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureParentDir creates the directory that will hold path (a database or
// log file) and returns path unchanged. In-memory SQLite names are skipped.
func EnsureParentDir(path string) (string, error) {
	if path == "" || path == ":memory:" {
		return path, nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return path, nil
}

// DefaultDataDir returns ~/.local/share/tasksync, or a tasksync directory in
// the working directory when no home is available.
func DefaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "tasksync")
	}
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, "tasksync")
	}
	return "tasksync"
}
