package proto

import (
	"bytes"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Protobuf field numbers. The schema, in .proto terms:
//
//	message Change {
//	  string op = 1; string entity_type = 2; string id = 3;
//	  int64 timestamp = 4; string origin_device_id = 5;
//	  bytes record = 6; int64 seq = 7;
//	}
//	message SyncRequest {
//	  string device_id = 1; int64 last_watermark = 2; repeated Change changes = 3;
//	}
//	message Conflict {
//	  string id = 1; string entity_type = 2; string reason = 3; string detail = 4;
//	}
//	message SyncResponse {
//	  int64 new_watermark = 1; int64 server_time = 2;
//	  repeated Change changes = 3; repeated Conflict conflicts = 4;
//	}
//	message PingRequest {}
//	message PingResponse { string status = 1; int64 server_time = 2; }
const (
	changeOp         protowire.Number = 1
	changeEntityType protowire.Number = 2
	changeID         protowire.Number = 3
	changeTimestamp  protowire.Number = 4
	changeOrigin     protowire.Number = 5
	changeRecord     protowire.Number = 6
	changeSeq        protowire.Number = 7

	requestDeviceID      protowire.Number = 1
	requestLastWatermark protowire.Number = 2
	requestChanges       protowire.Number = 3

	conflictID         protowire.Number = 1
	conflictEntityType protowire.Number = 2
	conflictReason     protowire.Number = 3
	conflictDetail     protowire.Number = 4

	responseNewWatermark protowire.Number = 1
	responseServerTime   protowire.Number = 2
	responseChanges      protowire.Number = 3
	responseConflicts    protowire.Number = 4

	pingStatus     protowire.Number = 1
	pingServerTime protowire.Number = 2
)

// appendString and the other scalar helpers omit zero values, as proto3 does.
func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendInt64(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

// field is one decoded tag and its value.
type field struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	bytes  []byte
}

func (f field) wrongType() error {
	return fmt.Errorf("proto: field %d has wire type %d", f.num, f.typ)
}

func (f field) asString() (string, error) {
	if f.typ != protowire.BytesType {
		return "", f.wrongType()
	}
	return string(f.bytes), nil
}

// asBytes copies the value: gRPC may reuse the input buffer after Unmarshal.
func (f field) asBytes() ([]byte, error) {
	if f.typ != protowire.BytesType {
		return nil, f.wrongType()
	}
	return bytes.Clone(f.bytes), nil
}

func (f field) asInt64() (int64, error) {
	if f.typ != protowire.VarintType {
		return 0, f.wrongType()
	}
	return int64(f.varint), nil
}

// readFields walks an encoded message and hands every field to fn. Fields of
// other wire types are skipped so that unknown fields from newer peers are
// ignored.
func readFields(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func (c *Change) appendWire(b []byte) []byte {
	b = appendString(b, changeOp, string(c.Op))
	b = appendString(b, changeEntityType, string(c.EntityType))
	b = appendString(b, changeID, c.ID)
	b = appendInt64(b, changeTimestamp, c.Timestamp)
	b = appendString(b, changeOrigin, c.OriginDeviceID)
	b = appendBytes(b, changeRecord, c.Record)
	b = appendInt64(b, changeSeq, c.Seq)
	return b
}

// MarshalBinary encodes the change in protobuf wire format.
func (c *Change) MarshalBinary() ([]byte, error) {
	return c.appendWire(nil), nil
}

// UnmarshalBinary decodes a protobuf encoded change.
func (c *Change) UnmarshalBinary(data []byte) error {
	*c = Change{}
	return readFields(data, func(f field) error {
		var err error
		switch f.num {
		case changeOp:
			var s string
			s, err = f.asString()
			c.Op = Op(s)
		case changeEntityType:
			var s string
			s, err = f.asString()
			c.EntityType = EntityType(s)
		case changeID:
			c.ID, err = f.asString()
		case changeTimestamp:
			c.Timestamp, err = f.asInt64()
		case changeOrigin:
			c.OriginDeviceID, err = f.asString()
		case changeRecord:
			c.Record, err = f.asBytes()
		case changeSeq:
			c.Seq, err = f.asInt64()
		}
		return err
	})
}

func decodeChange(f field) (Change, error) {
	var c Change
	if f.typ != protowire.BytesType {
		return c, f.wrongType()
	}
	err := c.UnmarshalBinary(f.bytes)
	return c, err
}

// MarshalBinary encodes the request in protobuf wire format.
func (r *SyncRequest) MarshalBinary() ([]byte, error) {
	var b []byte
	b = appendString(b, requestDeviceID, r.DeviceID)
	b = appendInt64(b, requestLastWatermark, r.LastWatermark)
	for i := range r.Changes {
		b = appendMessage(b, requestChanges, r.Changes[i].appendWire(nil))
	}
	return b, nil
}

// UnmarshalBinary decodes a protobuf encoded request.
func (r *SyncRequest) UnmarshalBinary(data []byte) error {
	*r = SyncRequest{}
	return readFields(data, func(f field) error {
		var err error
		switch f.num {
		case requestDeviceID:
			r.DeviceID, err = f.asString()
		case requestLastWatermark:
			r.LastWatermark, err = f.asInt64()
		case requestChanges:
			var c Change
			if c, err = decodeChange(f); err == nil {
				r.Changes = append(r.Changes, c)
			}
		}
		return err
	})
}

func (c *Conflict) appendWire(b []byte) []byte {
	b = appendString(b, conflictID, c.ID)
	b = appendString(b, conflictEntityType, string(c.EntityType))
	b = appendString(b, conflictReason, string(c.Reason))
	b = appendString(b, conflictDetail, c.Detail)
	return b
}

// MarshalBinary encodes the conflict in protobuf wire format.
func (c *Conflict) MarshalBinary() ([]byte, error) {
	return c.appendWire(nil), nil
}

// UnmarshalBinary decodes a protobuf encoded conflict.
func (c *Conflict) UnmarshalBinary(data []byte) error {
	*c = Conflict{}
	return readFields(data, func(f field) error {
		var (
			s   string
			err error
		)
		switch f.num {
		case conflictID:
			c.ID, err = f.asString()
		case conflictEntityType:
			s, err = f.asString()
			c.EntityType = EntityType(s)
		case conflictReason:
			s, err = f.asString()
			c.Reason = ConflictReason(s)
		case conflictDetail:
			c.Detail, err = f.asString()
		}
		return err
	})
}

// MarshalBinary encodes the response in protobuf wire format.
func (r *SyncResponse) MarshalBinary() ([]byte, error) {
	var b []byte
	b = appendInt64(b, responseNewWatermark, r.NewWatermark)
	b = appendInt64(b, responseServerTime, r.ServerTime)
	for i := range r.Changes {
		b = appendMessage(b, responseChanges, r.Changes[i].appendWire(nil))
	}
	for i := range r.Conflicts {
		b = appendMessage(b, responseConflicts, r.Conflicts[i].appendWire(nil))
	}
	return b, nil
}

// UnmarshalBinary decodes a protobuf encoded response.
func (r *SyncResponse) UnmarshalBinary(data []byte) error {
	*r = SyncResponse{}
	return readFields(data, func(f field) error {
		var err error
		switch f.num {
		case responseNewWatermark:
			r.NewWatermark, err = f.asInt64()
		case responseServerTime:
			r.ServerTime, err = f.asInt64()
		case responseChanges:
			var c Change
			if c, err = decodeChange(f); err == nil {
				r.Changes = append(r.Changes, c)
			}
		case responseConflicts:
			if f.typ != protowire.BytesType {
				return f.wrongType()
			}
			var c Conflict
			if err = c.UnmarshalBinary(f.bytes); err == nil {
				r.Conflicts = append(r.Conflicts, c)
			}
		}
		return err
	})
}

// MarshalBinary encodes the empty ping request.
func (*PingRequest) MarshalBinary() ([]byte, error) {
	return nil, nil
}

// UnmarshalBinary accepts any well-formed message; the request has no fields.
func (*PingRequest) UnmarshalBinary(data []byte) error {
	return readFields(data, func(field) error { return nil })
}

// MarshalBinary encodes the ping response in protobuf wire format.
func (p *PingResponse) MarshalBinary() ([]byte, error) {
	var b []byte
	b = appendString(b, pingStatus, p.Status)
	b = appendInt64(b, pingServerTime, p.ServerTime)
	return b, nil
}

// UnmarshalBinary decodes a protobuf encoded ping response.
func (p *PingResponse) UnmarshalBinary(data []byte) error {
	*p = PingResponse{}
	return readFields(data, func(f field) error {
		var err error
		switch f.num {
		case pingStatus:
			p.Status, err = f.asString()
		case pingServerTime:
			p.ServerTime, err = f.asInt64()
		}
		return err
	})
}
