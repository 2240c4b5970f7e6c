// Package timex contains time helpers shared by config loaders and the sync
// clock.
package timex

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration so config files can say "3s" instead of a
// nanosecond count. Both forms are accepted on input.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration: %s", string(b))
	}
}

// UnmarshalText lets TOML decoders accept "30s" style values.
func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Micros returns t as Unix microseconds, the unit of every sync timestamp.
func Micros(t time.Time) int64 {
	return t.UnixMicro()
}

// FromMicros converts Unix microseconds back to a UTC time.
func FromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}
