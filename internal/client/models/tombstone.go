package models

import (
	"github.com/dmitrijs2005/tasksync/internal/lww"
	"github.com/dmitrijs2005/tasksync/internal/proto"
)

// Tombstone records that an entity was deleted at DeletedAt.
type Tombstone struct {
	EntityType proto.EntityType
	ID         string
	DeletedAt  int64
	Origin     string
}

func (t *Tombstone) Version() lww.Version {
	return lww.Version{Timestamp: t.DeletedAt, Origin: t.Origin, Deleted: true}
}

func (t *Tombstone) Change() proto.Change {
	return proto.NewDelete(t.EntityType, t.ID, t.DeletedAt, t.Origin)
}

// TombstoneFromChange builds the tombstone of a delete change.
func TombstoneFromChange(c proto.Change) *Tombstone {
	return &Tombstone{EntityType: c.EntityType, ID: c.ID, DeletedAt: c.Timestamp, Origin: c.OriginDeviceID}
}

// OutboxEntry is a local change waiting to be confirmed by the server.
type OutboxEntry struct {
	Seq       int64
	Change    proto.Change
	CreatedAt int64
}
