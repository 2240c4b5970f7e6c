package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/tasksync/internal/client/models"
	"github.com/dmitrijs2005/tasksync/internal/proto"
)

type usageError string

func (u usageError) Error() string { return "usage: " + string(u) }

func kindOf(word string) (proto.EntityType, error) {
	switch strings.ToLower(word) {
	case "list":
		return proto.EntityList, nil
	case "tag":
		return proto.EntityTag, nil
	case "task":
		return proto.EntityTask, nil
	}
	return "", fmt.Errorf("expected list, tag or task, got %q", word)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (a *App) Lists(ctx context.Context, _ []string) error {
	lists, err := a.records.Lists(ctx)
	if err != nil {
		return err
	}
	for _, l := range lists {
		tasks, err := a.records.Tasks(ctx, l.ID)
		if err != nil {
			return err
		}
		open := 0
		for _, t := range tasks {
			if !t.Completed {
				open++
			}
		}
		printlnFn(fmt.Sprintf("%s  %s (%d open)", shortID(l.ID), l.Name, open))
	}
	return nil
}

func (a *App) Tags(ctx context.Context, _ []string) error {
	tags, err := a.records.Tags(ctx)
	if err != nil {
		return err
	}
	for _, t := range tags {
		line := fmt.Sprintf("%s  #%s", shortID(t.ID), t.Name)
		if t.Color != "" {
			line += " " + t.Color
		}
		printlnFn(line)
	}
	return nil
}

func (a *App) Tasks(ctx context.Context, args []string) error {
	listID := ""
	if len(args) > 0 {
		id, err := a.records.Resolve(ctx, proto.EntityList, strings.Join(args, " "))
		if err != nil {
			return err
		}
		listID = id
	}

	tasks, err := a.records.Tasks(ctx, listID)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		printlnFn("No tasks.")
		return nil
	}
	for _, t := range tasks {
		line, err := a.taskLine(ctx, t)
		if err != nil {
			return err
		}
		printlnFn(line)
	}
	return nil
}

func (a *App) taskLine(ctx context.Context, t *models.Task) (string, error) {
	mark := " "
	if t.Completed {
		mark = "x"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s", shortID(t.ID), mark, t.Title)
	if t.Priority != "" && t.Priority != models.PriorityMedium {
		fmt.Fprintf(&b, " !%s", t.Priority)
	}
	if due := formatDue(t.DueDate); due != "" {
		fmt.Fprintf(&b, " due:%s", due)
	}

	tags, err := a.records.TagsOfTask(ctx, t.ID)
	if err != nil {
		return "", err
	}
	for _, tag := range tags {
		fmt.Fprintf(&b, " #%s", tag.Name)
	}
	return b.String(), nil
}

func (a *App) AddList(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("addlist <name>")
	}
	l, err := a.records.CreateList(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	printlnFn("Created list", shortID(l.ID))
	return nil
}

func (a *App) AddTag(ctx context.Context, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return usageError("addtag <name> [color]")
	}
	color := ""
	if len(args) == 2 {
		color = args[1]
	}
	t, err := a.records.CreateTag(ctx, args[0], color)
	if err != nil {
		return err
	}
	printlnFn("Created tag", shortID(t.ID))
	return nil
}

func (a *App) AddTask(ctx context.Context, args []string) error {
	listID := ""
	if len(args) > 0 && strings.HasPrefix(args[0], "@") {
		id, err := a.records.Resolve(ctx, proto.EntityList, strings.TrimPrefix(args[0], "@"))
		if err != nil {
			return err
		}
		listID, args = id, args[1:]
	}
	if len(args) == 0 {
		return usageError("addtask [@list] <title>")
	}

	t, err := a.records.CreateTask(ctx, strings.Join(args, " "), listID)
	if err != nil {
		return err
	}
	printlnFn("Created task", shortID(t.ID))
	return nil
}

func (a *App) Done(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("done <task>")
	}
	id, err := a.records.Resolve(ctx, proto.EntityTask, args[0])
	if err != nil {
		return err
	}
	t, err := a.records.ToggleTask(ctx, id)
	if err != nil {
		return err
	}
	if t.Completed {
		printlnFn("Completed:", t.Title)
	} else {
		printlnFn("Reopened:", t.Title)
	}
	return nil
}

func (a *App) Rename(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return usageError("rename list|tag|task <ref> <name>")
	}
	kind, err := kindOf(args[0])
	if err != nil {
		return err
	}
	id, err := a.records.Resolve(ctx, kind, args[1])
	if err != nil {
		return err
	}
	return a.records.Rename(ctx, kind, id, strings.Join(args[2:], " "))
}

func (a *App) Describe(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("describe <task>")
	}
	id, err := a.records.Resolve(ctx, proto.EntityTask, args[0])
	if err != nil {
		return err
	}
	text, err := GetMultiline(a.reader, "Enter description", a.out)
	if err != nil {
		return err
	}
	return a.records.SetDescription(ctx, id, text)
}

func (a *App) Priority(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("priority <task> <low|medium|high|urgent>")
	}
	p, err := models.ParsePriority(args[1])
	if err != nil {
		return err
	}
	id, err := a.records.Resolve(ctx, proto.EntityTask, args[0])
	if err != nil {
		return err
	}
	return a.records.SetPriority(ctx, id, p)
}

func (a *App) Due(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usageError("due <task> <when>|none")
	}
	due, err := parseDue(strings.Join(args[1:], " "), time.Now())
	if err != nil {
		return err
	}
	id, err := a.records.Resolve(ctx, proto.EntityTask, args[0])
	if err != nil {
		return err
	}
	if err := a.records.SetDueDate(ctx, id, due); err != nil {
		return err
	}
	if due.IsZero() {
		printlnFn("Due date cleared")
	} else {
		printlnFn("Due", formatDue(due.UnixMicro()))
	}
	return nil
}

func (a *App) taskAndTag(ctx context.Context, args []string, usage string) (string, string, error) {
	if len(args) != 2 {
		return "", "", usageError(usage)
	}
	taskID, err := a.records.Resolve(ctx, proto.EntityTask, args[0])
	if err != nil {
		return "", "", err
	}
	tagID, err := a.records.Resolve(ctx, proto.EntityTag, strings.TrimPrefix(args[1], "#"))
	if err != nil {
		return "", "", err
	}
	return taskID, tagID, nil
}

func (a *App) Tag(ctx context.Context, args []string) error {
	taskID, tagID, err := a.taskAndTag(ctx, args, "tag <task> <tag>")
	if err != nil {
		return err
	}
	return a.records.TagTask(ctx, taskID, tagID)
}

func (a *App) Untag(ctx context.Context, args []string) error {
	taskID, tagID, err := a.taskAndTag(ctx, args, "untag <task> <tag>")
	if err != nil {
		return err
	}
	return a.records.UntagTask(ctx, taskID, tagID)
}

func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("delete list|tag|task <ref>")
	}
	kind, err := kindOf(args[0])
	if err != nil {
		return err
	}
	id, err := a.records.Resolve(ctx, kind, args[1])
	if err != nil {
		return err
	}
	if err := a.records.Delete(ctx, kind, id); err != nil {
		return err
	}
	printlnFn("Deleted", args[0], shortID(id))
	return nil
}

// Sync runs a round in the foreground. A successful manual round also lifts
// a pause left by an earlier failure.
func (a *App) Sync(ctx context.Context, _ []string) error {
	if timeout := a.cfg().RoundTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := a.syncer.Sync(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	printlnFn(fmt.Sprintf("Synced: sent %d, received %d, skipped %d, conflicts %d",
		res.Sent, res.Applied, res.Skipped, len(res.Conflicts)))
	if res.Remaining > 0 {
		printlnFn(fmt.Sprintf("%d changes left for the next round", res.Remaining))
	}
	if a.scheduler.Paused() || res.Remaining > 0 {
		a.scheduler.Resume()
	}
	return nil
}

func (a *App) Status(ctx context.Context, _ []string) error {
	st, err := a.syncer.Status(ctx)
	if err != nil {
		return err
	}

	state := "idle"
	switch {
	case !st.Configured:
		state = "not configured"
	case st.Syncing:
		state = "syncing"
	case a.scheduler.Paused():
		state = "paused"
	}
	last := "never"
	if !st.LastSync.IsZero() {
		last = st.LastSync.Local().Format(time.DateTime)
	}

	printlnFn("Sync:      ", state)
	printlnFn("Server:    ", a.cfg().ServerURL)
	printlnFn("Device:    ", a.records.DeviceID())
	printlnFn("Last sync: ", last)
	printlnFn("Pending:   ", st.Pending)
	printlnFn("Watermark: ", st.Watermark)
	if st.LastError != "" {
		printlnFn("Last error:", st.LastError)
	}
	return nil
}

func (a *App) Resync(ctx context.Context, _ []string) error {
	n, err := a.syncer.Resync(ctx)
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("Queued %d records for a full sync", n))
	a.scheduler.Resume()
	return nil
}

var _ execIface = (*App)(nil)
