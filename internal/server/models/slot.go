package models

import "github.com/dmitrijs2005/tasksync/internal/proto"

// Slot holds the winning change for one record id within an account, plus
// the sequence at which it was installed.
type Slot struct {
	AccountID  string
	EntityType proto.EntityType
	ID         string
	Op         proto.Op
	Timestamp  int64
	Origin     string
	Record     []byte
	Seq        int64
}

// SlotFromChange builds the slot that installing c at seq produces.
func SlotFromChange(accountID string, c proto.Change, seq int64) *Slot {
	s := &Slot{
		AccountID:  accountID,
		EntityType: c.EntityType,
		ID:         c.ID,
		Op:         c.Op,
		Timestamp:  c.Timestamp,
		Origin:     c.OriginDeviceID,
		Seq:        seq,
	}
	if c.Op == proto.OpUpsert {
		s.Record = append([]byte(nil), c.Record...)
	}
	return s
}

// Change renders the slot as the change sent back to devices.
func (s *Slot) Change() proto.Change {
	c := proto.Change{
		Op:             s.Op,
		EntityType:     s.EntityType,
		ID:             s.ID,
		Timestamp:      s.Timestamp,
		OriginDeviceID: s.Origin,
		Seq:            s.Seq,
	}
	if s.Op == proto.OpUpsert {
		c.Record = append([]byte(nil), s.Record...)
	}
	return c
}
