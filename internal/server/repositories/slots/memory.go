package slots

import (
	"context"

	"github.com/dmitrijs2005/tasksync/internal/common"
	"github.com/dmitrijs2005/tasksync/internal/proto"
	"github.com/dmitrijs2005/tasksync/internal/server/models"
	"github.com/dmitrijs2005/tasksync/internal/server/repositories/memdb"
)

type MemoryRepository struct {
	conn memdb.Conn
}

func NewMemoryRepository(conn memdb.Conn) *MemoryRepository {
	return &MemoryRepository{conn: conn}
}

func clone(s models.Slot) *models.Slot {
	s.Record = append([]byte(nil), s.Record...)
	if len(s.Record) == 0 {
		s.Record = nil
	}
	return &s
}

func (r *MemoryRepository) Get(ctx context.Context, accountID string, entity proto.EntityType, id string) (*models.Slot, error) {
	var out *models.Slot
	err := r.conn.Do(func(tx *memdb.Tx) error {
		s, ok := tx.Slot(memdb.SlotKey{AccountID: accountID, EntityType: entity, ID: id})
		if !ok {
			return common.ErrorNotFound
		}
		out = clone(s)
		return nil
	})
	return out, err
}

func (r *MemoryRepository) Upsert(ctx context.Context, s *models.Slot) error {
	return r.conn.Do(func(tx *memdb.Tx) error {
		tx.PutSlot(*clone(*s))
		return nil
	})
}

func (r *MemoryRepository) SelectSince(ctx context.Context, accountID string, since int64) ([]*models.Slot, error) {
	var out []*models.Slot
	err := r.conn.Do(func(tx *memdb.Tx) error {
		for _, s := range tx.SlotsSince(accountID, since) {
			out = append(out, clone(s))
		}
		return nil
	})
	return out, err
}
