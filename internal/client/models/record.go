// Package models defines the records kept in the local store and the helpers
// that turn them into sync changes and back.
package models

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/tasksync/internal/common"
	"github.com/dmitrijs2005/tasksync/internal/lww"
	"github.com/dmitrijs2005/tasksync/internal/proto"
)

// Meta is the header every record carries. Origin is the device that wrote
// the current version; it is kept beside the record, not inside its payload.
//
// Payload holds the encoded record exactly as it was last sent or received.
// Ties between versions are broken on these bytes, and re-encoding a record
// that came from another device could drop fields or reorder keys.
type Meta struct {
	ID        string          `json:"id"`
	UpdatedAt int64           `json:"updated_at"`
	Origin    string          `json:"-"`
	Payload   json.RawMessage `json:"-"`
}

func (m *Meta) Header() *Meta { return m }

func (m *Meta) isRecord() {}

// Record is the closed set of synchronized entities: *List, *Tag, *Task and
// *TaskTag.
type Record interface {
	Kind() proto.EntityType
	Header() *Meta
	isRecord()
}

// NewRecord returns an empty record of the given kind.
func NewRecord(kind proto.EntityType) (Record, error) {
	switch kind {
	case proto.EntityList:
		return &List{}, nil
	case proto.EntityTag:
		return &Tag{}, nil
	case proto.EntityTask:
		return &Task{}, nil
	case proto.EntityTaskTag:
		return &TaskTag{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown entity type %q", common.ErrInvalidChange, kind)
	}
}

// DecodeRecord decodes the payload of an upsert change.
func DecodeRecord(kind proto.EntityType, raw []byte) (Record, error) {
	r, err := NewRecord(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, r); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", common.ErrInvalidChange, kind, err)
	}
	return r, nil
}

// FromChange rebuilds the record carried by an upsert change, taking its
// origin and payload from the change. Normalize the change first so that the
// payload is compact.
func FromChange(c proto.Change) (Record, error) {
	if c.Op != proto.OpUpsert {
		return nil, fmt.Errorf("%w: %s is not an upsert", common.ErrInvalidChange, c.Key())
	}
	r, err := DecodeRecord(c.EntityType, c.Record)
	if err != nil {
		return nil, err
	}
	h := r.Header()
	if h.ID != c.ID || h.UpdatedAt != c.Timestamp {
		return nil, fmt.Errorf("%w: record header does not match change %s", common.ErrInvalidChange, c.Key())
	}
	h.Origin = c.OriginDeviceID
	h.Payload = c.Record
	return r, nil
}

// ToChange encodes r as an upsert change stamped with its header and records
// the encoding as the record's payload. Use it after a local edit.
func ToChange(r Record) (proto.Change, error) {
	h := r.Header()
	c, err := proto.NewUpsert(r.Kind(), h.ID, h.UpdatedAt, h.Origin, r)
	if err != nil {
		return proto.Change{}, err
	}
	h.Payload = c.Record
	return c, nil
}

// StoredChange rebuilds the upsert change of the version held locally,
// resending the stored payload when there is one.
func StoredChange(r Record) (proto.Change, error) {
	h := r.Header()
	if len(h.Payload) == 0 {
		return ToChange(r)
	}
	return proto.Change{
		Op:             proto.OpUpsert,
		EntityType:     r.Kind(),
		ID:             h.ID,
		Timestamp:      h.UpdatedAt,
		OriginDeviceID: h.Origin,
		Record:         h.Payload,
	}, nil
}

// VersionOf returns the ordering key of a stored record: the stored payload,
// or the encoding ToChange produces for records saved without one.
func VersionOf(r Record) (lww.Version, error) {
	h := r.Header()
	payload := h.Payload
	if len(payload) == 0 {
		var err error
		if payload, err = json.Marshal(r); err != nil {
			return lww.Version{}, err
		}
	}
	return lww.Version{Timestamp: h.UpdatedAt, Origin: h.Origin, Payload: payload}, nil
}
