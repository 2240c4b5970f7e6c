// Package repomanager wires repository implementations to a backing store
// and runs work inside that store's transactions.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/tasksync/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/tasksync/internal/server/repositories/slots"
	"github.com/dmitrijs2005/tasksync/internal/server/repositories/tokens"
)

// Repositories is one consistent set of repositories, bound either to the
// connection pool or to a single transaction.
type Repositories struct {
	Accounts accounts.Repository
	Tokens   tokens.Repository
	Slots    slots.Repository
}

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	// Repos returns auto-commit repositories.
	Repos() Repositories
	// InTx runs fn with repositories bound to one transaction, committing
	// when fn returns nil and rolling back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error
	Close() error
}
