package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/tasksync/internal/client/migrations"
	"github.com/dmitrijs2005/tasksync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/tasksync/internal/client/repositories/outbox"
	"github.com/dmitrijs2005/tasksync/internal/client/repositories/records"
	"github.com/dmitrijs2005/tasksync/internal/dbx"
	"github.com/dmitrijs2005/tasksync/internal/filex"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

var gooseUpContext = goose.UpContext

type Repositories struct {
	Records  records.Repository
	Outbox   outbox.Repository
	Metadata metadata.Repository
}

func bind(db dbx.DBTX) Repositories {
	return Repositories{
		Records:  records.NewSQLiteRepository(db),
		Outbox:   outbox.NewSQLiteRepository(db),
		Metadata: metadata.NewSQLiteRepository(db),
	}
}

// Store is the device's local database.
type Store struct {
	db    *sql.DB
	repos Repositories
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return gooseUpContext(ctx, db, ".")
}

// InitDatabase opens (creating if needed) the SQLite file at dsn and applies
// migrations. ":memory:" gives a private in-memory store.
func InitDatabase(ctx context.Context, dsn string) (*Store, error) {
	if _, err := filex.EnsureParentDir(dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases from splitting per connection.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &Store{db: db, repos: bind(db)}, nil
}

// Repos returns repositories that auto-commit each statement.
func (s *Store) Repos() Repositories {
	return s.repos
}

// InTx runs fn with repositories bound to one transaction.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, bind(tx))
	})
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}
