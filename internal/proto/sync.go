package proto

import (
	"fmt"

	"github.com/dmitrijs2005/tasksync/internal/common"
)

// SyncRequest is one round's upload from a device.
type SyncRequest struct {
	DeviceID      string   `json:"device_id"`
	LastWatermark int64    `json:"last_watermark"`
	Changes       []Change `json:"changes"`
}

// Validate checks the request envelope. Individual changes are validated
// during the merge so that one bad change does not reject the batch.
func (r *SyncRequest) Validate(maxBatch int) error {
	if r == nil {
		return fmt.Errorf("%w: empty body", common.ErrInvalidRequest)
	}
	if r.DeviceID == "" {
		return fmt.Errorf("%w: missing device id", common.ErrInvalidRequest)
	}
	if r.LastWatermark < 0 {
		return fmt.Errorf("%w: negative watermark", common.ErrInvalidRequest)
	}
	if maxBatch > 0 && len(r.Changes) > maxBatch {
		return fmt.Errorf("%w: %d changes, limit %d", common.ErrBatchTooLarge, len(r.Changes), maxBatch)
	}
	return nil
}

// ConflictReason explains why a submitted change was not installed.
type ConflictReason string

const (
	// ReasonSuperseded means the server already holds a newer version; that
	// version is included in the response changes.
	ReasonSuperseded ConflictReason = "superseded"
	// ReasonInvalid means the change failed validation and was dropped.
	ReasonInvalid ConflictReason = "invalid"
)

// Conflict reports a submitted change that lost the merge or was rejected.
type Conflict struct {
	ID         string         `json:"id"`
	EntityType EntityType     `json:"entity_type"`
	Reason     ConflictReason `json:"reason"`
	Detail     string         `json:"detail,omitempty"`
}

// SyncResponse is the server's authoritative answer to a SyncRequest.
type SyncResponse struct {
	NewWatermark int64      `json:"new_watermark"`
	ServerTime   int64      `json:"server_time"`
	Changes      []Change   `json:"changes"`
	Conflicts    []Conflict `json:"conflicts"`
}

type PingRequest struct{}

type PingResponse struct {
	Status     string `json:"status"`
	ServerTime int64  `json:"server_time"`
}
