// Package proto holds the wire representation shared by the HTTP and gRPC
// transports: changes, sync requests and responses. HTTP carries them as
// JSON; gRPC uses the protobuf wire encoding in wire.go through Codec.
package proto

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/tasksync/internal/common"
	"github.com/dmitrijs2005/tasksync/internal/lww"
)

// Op tells whether a change installs a record or a tombstone.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

func (o Op) Valid() bool {
	return o == OpUpsert || o == OpDelete
}

// EntityType is the closed set of synchronised record kinds.
type EntityType string

const (
	EntityTask    EntityType = "task"
	EntityList    EntityType = "list"
	EntityTag     EntityType = "tag"
	EntityTaskTag EntityType = "task_tag"
)

// EntityTypes lists every entity type in the order incoming batches are
// applied: containers before the records that reference them.
var EntityTypes = []EntityType{EntityList, EntityTag, EntityTask, EntityTaskTag}

func (e EntityType) Valid() bool {
	switch e {
	case EntityTask, EntityList, EntityTag, EntityTaskTag:
		return true
	}
	return false
}

// ApplyRank orders entity types for application; see EntityTypes.
func (e EntityType) ApplyRank() int {
	for i, t := range EntityTypes {
		if t == e {
			return i
		}
	}
	return len(EntityTypes)
}

// Change is one upsert or tombstone travelling between a device and the
// server.
type Change struct {
	Op         Op         `json:"op"`
	EntityType EntityType `json:"entity_type"`
	ID         string     `json:"id"`
	// Timestamp is updated_at for upserts and deleted_at for deletions,
	// Unix microseconds on the originating device's clock.
	Timestamp      int64           `json:"timestamp"`
	OriginDeviceID string          `json:"origin_device_id"`
	Record         json.RawMessage `json:"record,omitempty"`
	// Seq is the server sequence at which the change was installed. Only
	// set on changes sent by the server.
	Seq int64 `json:"seq,omitempty"`
}

// recordHeader is the part of every encoded record the protocol inspects.
type recordHeader struct {
	ID        *string `json:"id"`
	UpdatedAt *int64  `json:"updated_at"`
}

// NewUpsert encodes record as an upsert change. The record must carry the
// same id and updated_at as the change.
func NewUpsert(entity EntityType, id string, ts int64, origin string, record any) (Change, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return Change{}, fmt.Errorf("encode %s %s: %w", entity, id, err)
	}
	return Change{
		Op:             OpUpsert,
		EntityType:     entity,
		ID:             id,
		Timestamp:      ts,
		OriginDeviceID: origin,
		Record:         raw,
	}, nil
}

// NewDelete builds a tombstone change.
func NewDelete(entity EntityType, id string, deletedAt int64, origin string) Change {
	return Change{
		Op:             OpDelete,
		EntityType:     entity,
		ID:             id,
		Timestamp:      deletedAt,
		OriginDeviceID: origin,
	}
}

// Version returns the ordering key of the change.
func (c Change) Version() lww.Version {
	v := lww.Version{
		Timestamp: c.Timestamp,
		Origin:    c.OriginDeviceID,
		Deleted:   c.Op == OpDelete,
	}
	if !v.Deleted {
		v.Payload = c.Record
	}
	return v
}

// Normalize compacts the record JSON so that byte comparison of payloads
// does not depend on how a sender formatted them.
func (c *Change) Normalize() error {
	if len(c.Record) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, c.Record); err != nil {
		return fmt.Errorf("%w: record is not valid JSON", common.ErrInvalidChange)
	}
	c.Record = buf.Bytes()
	return nil
}

// Validate checks the structural rules every change must satisfy before it
// takes part in a merge. Errors wrap common.ErrInvalidChange.
func (c Change) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", common.ErrInvalidChange, fmt.Sprintf(format, args...))
	}

	if c.ID == "" {
		return invalid("missing id")
	}
	if !c.EntityType.Valid() {
		return invalid("unknown entity type %q", c.EntityType)
	}
	if !c.Op.Valid() {
		return invalid("unknown op %q", c.Op)
	}
	if c.Timestamp <= 0 {
		return invalid("timestamp must be positive")
	}
	if c.OriginDeviceID == "" {
		return invalid("missing origin device id")
	}

	if c.Op == OpDelete {
		if len(c.Record) != 0 {
			return invalid("delete must not carry a record")
		}
		return nil
	}

	if len(c.Record) == 0 {
		return invalid("upsert without record")
	}
	var h recordHeader
	if err := json.Unmarshal(c.Record, &h); err != nil {
		return invalid("record is not a JSON object")
	}
	if h.ID == nil || *h.ID != c.ID {
		return invalid("record id does not match change id")
	}
	if h.UpdatedAt == nil || *h.UpdatedAt != c.Timestamp {
		return invalid("record updated_at does not match change timestamp")
	}
	return nil
}

// Key identifies the slot a change targets within an account.
func (c Change) Key() string {
	return string(c.EntityType) + ":" + c.ID
}
