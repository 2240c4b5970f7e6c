package client

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is transient: the server could not be reached or is
	// overloaded. The round may be retried later.
	ErrUnavailable = errors.New("server unavailable")
	// ErrUnauthorized means the token was refused. Retrying is pointless
	// until the token is reconfigured.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRejected means the server refused the request as malformed.
	ErrRejected = errors.New("request rejected by server")
	// ErrBatchTooLarge is an ErrRejected for a batch above the server's
	// limit. A smaller batch will be accepted.
	ErrBatchTooLarge = fmt.Errorf("%w: batch too large", ErrRejected)

	ErrLocalDataNotAvailable = errors.New("local data unavailable")
	ErrNotConfigured         = errors.New("sync is not configured")
	// ErrWatermarkRegression means the server reported an older sequence
	// than this device already incorporated, as after a server restore.
	ErrWatermarkRegression = errors.New("server watermark went backwards")
)
