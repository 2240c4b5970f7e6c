package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/tasksync/internal/common"
	"github.com/dmitrijs2005/tasksync/internal/server/models"
	"github.com/dmitrijs2005/tasksync/internal/server/repositories/memdb"
)

type MemoryRepository struct {
	conn memdb.Conn
}

func NewMemoryRepository(conn memdb.Conn) *MemoryRepository {
	return &MemoryRepository{conn: conn}
}

func (r *MemoryRepository) GetOrCreate(ctx context.Context, id, name string) (*models.Account, error) {
	var out models.Account
	err := r.conn.Do(func(tx *memdb.Tx) error {
		if a, ok := tx.AccountByName(name); ok {
			out = a
			return nil
		}
		out = models.Account{ID: id, Name: name, CreatedAt: time.Now().UTC()}
		tx.PutAccount(out)
		return nil
	})
	return &out, err
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	var out models.Account
	err := r.conn.Do(func(tx *memdb.Tx) error {
		a, ok := tx.Account(id)
		if !ok {
			return common.ErrorNotFound
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LockForUpdate only reads: the memdb transaction already excludes every
// other writer.
func (r *MemoryRepository) LockForUpdate(ctx context.Context, id string) (int64, error) {
	a, err := r.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return a.CurrentSeq, nil
}

func (r *MemoryRepository) IncrementCurrentSeq(ctx context.Context, id string) (int64, error) {
	var seq int64
	err := r.conn.Do(func(tx *memdb.Tx) error {
		a, ok := tx.Account(id)
		if !ok {
			return common.ErrorNotFound
		}
		a.CurrentSeq++
		tx.PutAccount(a)
		seq = a.CurrentSeq
		return nil
	})
	return seq, err
}

func (r *MemoryRepository) List(ctx context.Context) ([]*models.Account, error) {
	var out []*models.Account
	err := r.conn.Do(func(tx *memdb.Tx) error {
		for _, a := range tx.Accounts() {
			a := a
			out = append(out, &a)
		}
		return nil
	})
	return out, err
}
