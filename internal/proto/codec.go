package proto

import (
	"encoding"
	"fmt"
)

const (
	ServiceName    = "tasksync.SyncService"
	SyncFullMethod = "/" + ServiceName + "/Sync"
	PingFullMethod = "/" + ServiceName + "/Ping"
)

// Codec carries the proto types over gRPC in protobuf wire format. Each
// message encodes itself through MarshalBinary and UnmarshalBinary, so no
// generated code is involved and the service descriptor is declared by hand.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(encoding.BinaryMarshaler)
	if !ok {
		return nil, fmt.Errorf("proto: cannot marshal %T", v)
	}
	return m.MarshalBinary()
}

func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(encoding.BinaryUnmarshaler)
	if !ok {
		return fmt.Errorf("proto: cannot unmarshal into %T", v)
	}
	return m.UnmarshalBinary(data)
}

// Name matches the content subtype of generated protobuf clients.
func (Codec) Name() string { return "proto" }
