// Package common defines shared constants and sentinel errors used across
// client and server layers of tasksync. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token revoked")

	// Sync protocol errors.
	ErrInvalidChange  = errors.New("invalid change")
	ErrInvalidRequest = errors.New("invalid sync request")
	ErrBatchTooLarge  = errors.New("batch too large")
)
