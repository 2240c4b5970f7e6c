package client

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/tasksync/internal/proto"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	if err != nil {
		t.Fatalf("tableExists query failed: %v", err)
	}
	return n > 0
}

func TestInitDatabase_CreatesSchema(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "nested", "tasks.db")

	s, err := InitDatabase(ctx, dsn)
	if err != nil {
		t.Fatalf("InitDatabase error: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"goose_db_version", "lists", "tags", "tasks", "task_tags", "tombstones", "outbox", "metadata"} {
		if !tableExists(t, s.DB(), table) {
			t.Fatalf("expected table %s to exist after migrations", table)
		}
	}
}

func TestRunMigrations_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "app.db")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("sql.Open error: %v", err)
	}
	defer db.Close()

	if err := RunMigrations(ctx, db); err != nil {
		t.Fatalf("RunMigrations (first) error: %v", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		t.Fatalf("RunMigrations (second) should be idempotent, got error: %v", err)
	}
}

func TestInitDatabase_MigrationFailure(t *testing.T) {
	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	t.Cleanup(func() { gooseUpContext = orig })

	_, err := InitDatabase(context.Background(), ":memory:")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrations: boom")
}

func TestStore_InTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s, err := InitDatabase(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	wantErr := errors.New("abort")
	err = s.InTx(ctx, func(ctx context.Context, r Repositories) error {
		if _, err := r.Outbox.Append(ctx, proto.NewDelete(proto.EntityTask, "t1", 1, "d"), 1); err != nil {
			return err
		}
		require.NoError(t, r.Metadata.SetInt64(ctx, "k", 7))
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)

	n, err := s.Repos().Outbox.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	v, err := s.Repos().Metadata.GetInt64(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestStore_InTxCommits(t *testing.T) {
	ctx := context.Background()
	s, err := InitDatabase(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, r Repositories) error {
		return r.Metadata.SetInt64(ctx, "k", 7)
	}))

	v, err := s.Repos().Metadata.GetInt64(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
}
