// Package models defines server-side data models persisted in the database.
package models

import "time"

// Account owns a set of slots. CurrentSeq is the account's watermark
// counter, bumped once per merge that installs anything.
type Account struct {
	ID         string
	Name       string
	CurrentSeq int64
	CreatedAt  time.Time
}

// Token is the server-side record of an issued bearer token. Only the
// BLAKE2b digest of the signed token is kept.
type Token struct {
	ID        string
	AccountID string
	Digest    []byte
	CreatedAt time.Time
	ExpiresAt *time.Time
	RevokedAt *time.Time
}

// Active reports whether the token may still authenticate at now.
func (t *Token) Active(now time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	return t.ExpiresAt == nil || now.Before(*t.ExpiresAt)
}
