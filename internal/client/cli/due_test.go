package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDue(t *testing.T) {
	// A Wednesday.
	now := time.Date(2030, 1, 16, 10, 0, 0, 0, time.UTC)

	got, err := parseDue("2030-02-01", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 2, 1, 0, 0, 0, 0, time.UTC), got)

	got, err = parseDue("2030-02-01 17:30", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 2, 1, 17, 30, 0, 0, time.UTC), got)

	got, err = parseDue("tomorrow", now)
	require.NoError(t, err)
	assert.Equal(t, 17, got.Day())

	got, err = parseDue("none", now)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = parseDue("", now)
	assert.Error(t, err)

	_, err = parseDue("qwerty", now)
	assert.Error(t, err)
}

func TestFormatDue(t *testing.T) {
	assert.Empty(t, formatDue(0))

	day := time.Date(2030, 2, 1, 0, 0, 0, 0, time.Local)
	assert.Equal(t, "2030-02-01", formatDue(day.UnixMicro()))

	at := time.Date(2030, 2, 1, 9, 5, 0, 0, time.Local)
	assert.Equal(t, "2030-02-01 09:05", formatDue(at.UnixMicro()))
}
