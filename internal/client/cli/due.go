package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var dueParser = newDueParser()

func newDueParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// parseDue turns "2030-01-31", "tomorrow", "next friday 5pm" and similar
// into an absolute time relative to now. "none" clears the due date and
// yields the zero time.
func parseDue(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	switch strings.ToLower(text) {
	case "":
		return time.Time{}, fmt.Errorf("missing date")
	case "none", "clear", "-":
		return time.Time{}, nil
	}

	for _, layout := range []string{time.DateOnly, "2006-01-02 15:04", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, text, now.Location()); err == nil {
			return t, nil
		}
	}

	r, err := dueParser.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse date %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("cannot parse date %q", text)
	}
	return r.Time, nil
}

func formatDue(us int64) string {
	if us == 0 {
		return ""
	}
	t := time.UnixMicro(us).Local()
	if t.Hour() == 0 && t.Minute() == 0 {
		return t.Format(time.DateOnly)
	}
	return t.Format("2006-01-02 15:04")
}
