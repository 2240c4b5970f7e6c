package tokens

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

func (r *MemoryRepository) Create(ctx context.Context, t *models.Token) error {
	return r.conn.Do(func(tx *memdb.Tx) error {
		row := *t
		row.Digest = append([]byte(nil), t.Digest...)
		if row.CreatedAt.IsZero() {
			row.CreatedAt = time.Now().UTC()
		}
		tx.PutToken(row)
		return nil
	})
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*models.Token, error) {
	var out models.Token
	err := r.conn.Do(func(tx *memdb.Tx) error {
		t, ok := tx.Token(id)
		if !ok {
			return common.ErrorNotFound
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *MemoryRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	return r.conn.Do(func(tx *memdb.Tx) error {
		t, ok := tx.Token(id)
		if !ok || t.RevokedAt != nil {
			return common.ErrorNotFound
		}
		t.RevokedAt = &at
		tx.PutToken(t)
		return nil
	})
}
