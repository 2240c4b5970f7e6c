// Package lww implements the last-write-wins ordering shared by the client
// record store and the server account store.
//
// A version is ordered by timestamp, then by origin device id, then by kind
// (a deletion beats an upsert), then by payload bytes. The order is total, so
// merging any set of versions in any order, any number of times, lands on the
// same winner.
package lww

import (
	"bytes"
	"math"
)

// Version is the part of a change that takes part in ordering.
type Version struct {
	// Timestamp is updated_at for upserts and deleted_at for deletions,
	// in Unix microseconds.
	Timestamp int64
	// Origin is the device that produced the change.
	Origin string
	// Deleted marks a tombstone.
	Deleted bool
	// Payload is the encoded record; nil for tombstones.
	Payload []byte
}

// Compare returns -1 if a loses to b, +1 if a wins over b and 0 if both are
// the same version.
func Compare(a, b Version) int {
	switch {
	case a.Timestamp > b.Timestamp:
		return 1
	case a.Timestamp < b.Timestamp:
		return -1
	}

	switch {
	case a.Origin > b.Origin:
		return 1
	case a.Origin < b.Origin:
		return -1
	}

	if a.Deleted != b.Deleted {
		if a.Deleted {
			return 1
		}
		return -1
	}

	if a.Deleted {
		return 0
	}
	return bytes.Compare(a.Payload, b.Payload)
}

// Newer reports whether incoming strictly beats existing.
func Newer(incoming, existing Version) bool {
	return Compare(incoming, existing) > 0
}

// Winner returns whichever of a and b wins. Ties return a.
func Winner(a, b Version) Version {
	if Compare(b, a) > 0 {
		return b
	}
	return a
}

// Next returns the stamp for a new local change: the wall clock, but always
// strictly greater than the last stamp this device issued or observed. It
// saturates at math.MaxInt64 instead of wrapping negative.
func Next(nowMicros, last int64) int64 {
	if nowMicros > last {
		return nowMicros
	}
	if last == math.MaxInt64 {
		return last
	}
	return last + 1
}

// Observe folds a remote timestamp into the device's last stamp so that a
// later local edit is never ordered before data the device has already seen.
func Observe(last, remote int64) int64 {
	if remote > last {
		return remote
	}
	return last
}
