package repomanager

import (
	"context"

	"github.com/dmitrijs2005/tasksync/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/tasksync/internal/server/repositories/memdb"
	"github.com/dmitrijs2005/tasksync/internal/server/repositories/slots"
	"github.com/dmitrijs2005/tasksync/internal/server/repositories/tokens"
)

// InMemoryRepositoryManager keeps everything in a memdb.DB. Data is lost on
// exit and transactions of all accounts are serialized; it serves development
// runs and tests.
type InMemoryRepositoryManager struct {
	db *memdb.DB
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{db: memdb.New()}
}

func bindMemory(conn memdb.Conn) Repositories {
	return Repositories{
		Accounts: accounts.NewMemoryRepository(conn),
		Tokens:   tokens.NewMemoryRepository(conn),
		Slots:    slots.NewMemoryRepository(conn),
	}
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context) error {
	return nil
}

func (m *InMemoryRepositoryManager) Repos() Repositories {
	return bindMemory(m.db)
}

func (m *InMemoryRepositoryManager) InTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) (err error) {
	tx := m.db.Begin()

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
			return
		}
		tx.Commit()
	}()

	if err = ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, bindMemory(tx))
}

func (m *InMemoryRepositoryManager) Close() error {
	return nil
}
