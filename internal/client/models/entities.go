package models

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/tasksync/internal/proto"
	"github.com/google/uuid"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority accepts a priority name in any case.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

type List struct {
	Meta
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Color       string `json:"color,omitempty"`
	IsInbox     bool   `json:"is_inbox,omitempty"`
	SortOrder   int    `json:"sort_order"`
	CreatedAt   int64  `json:"created_at"`
}

func (*List) Kind() proto.EntityType { return proto.EntityList }

type Tag struct {
	Meta
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

func (*Tag) Kind() proto.EntityType { return proto.EntityTag }

type Task struct {
	Meta
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url,omitempty"`
	Priority    Priority `json:"priority"`
	Completed   bool     `json:"completed"`
	ListID      string   `json:"list_id"`
	CreatedAt   int64    `json:"created_at"`
	// CompletedAt and DueDate are Unix microseconds, zero when unset.
	CompletedAt int64 `json:"completed_at,omitempty"`
	DueDate     int64 `json:"due_date,omitempty"`
}

func (*Task) Kind() proto.EntityType { return proto.EntityTask }

// TaskTag links a task to a tag. Its id is derived from the pair, so every
// device that tags the same task with the same tag writes the same slot.
type TaskTag struct {
	Meta
	TaskID string `json:"task_id"`
	TagID  string `json:"tag_id"`
}

func (*TaskTag) Kind() proto.EntityType { return proto.EntityTaskTag }

var linkNamespace = uuid.MustParse("6f1c1c1e-5b0a-4f53-9a51-7d1f3c0e2a10")

// TaskTagID returns the id of the link between taskID and tagID.
func TaskTagID(taskID, tagID string) string {
	return uuid.NewSHA1(linkNamespace, []byte(taskID+"/"+tagID)).String()
}

// InboxID is the id of the default list. It is the same on every device so
// that inboxes created offline converge to one list.
var InboxID = uuid.NewSHA1(linkNamespace, []byte("inbox")).String()
