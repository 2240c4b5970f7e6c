package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the command surface the REPL dispatches to. The real
// App satisfies it; tests can provide a lightweight stub. Handlers receive
// the words after the command name.
type execIface interface {
	Lists(ctx context.Context, args []string) error
	Tags(ctx context.Context, args []string) error
	Tasks(ctx context.Context, args []string) error
	AddList(ctx context.Context, args []string) error
	AddTag(ctx context.Context, args []string) error
	AddTask(ctx context.Context, args []string) error
	Done(ctx context.Context, args []string) error
	Rename(ctx context.Context, args []string) error
	Describe(ctx context.Context, args []string) error
	Priority(ctx context.Context, args []string) error
	Due(ctx context.Context, args []string) error
	Tag(ctx context.Context, args []string) error
	Untag(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Sync(ctx context.Context, args []string) error
	Status(ctx context.Context, args []string) error
	Resync(ctx context.Context, args []string) error
}

const helpText = `Available commands:
  lists                         show lists
  tags                          show tags
  tasks [list]                  show tasks, all or of one list
  addlist <name>                create a list
  addtag <name> [color]         create a tag
  addtask [@list] <title>       create a task, in the inbox by default
  done <task>                   toggle completion
  rename list|tag|task <ref> <name>
  describe <task>               edit the description
  priority <task> <low|medium|high|urgent>
  due <task> <when>|none        set or clear the due date
  tag <task> <tag>              tag a task
  untag <task> <tag>            remove a tag from a task
  delete list|tag|task <ref>    delete a record
  sync                          synchronize now
  status                        show sync status
  resync                        send everything again on the next sync
  exit | quit                   leave the program
References are ids, id prefixes or exact names.`

type handler func(execIface, context.Context, []string) error

var commands = map[string]handler{
	"lists":    execIface.Lists,
	"l":        execIface.Lists,
	"tags":     execIface.Tags,
	"tasks":    execIface.Tasks,
	"t":        execIface.Tasks,
	"addlist":  execIface.AddList,
	"addtag":   execIface.AddTag,
	"addtask":  execIface.AddTask,
	"add":      execIface.AddTask,
	"done":     execIface.Done,
	"rename":   execIface.Rename,
	"describe": execIface.Describe,
	"priority": execIface.Priority,
	"due":      execIface.Due,
	"tag":      execIface.Tag,
	"untag":    execIface.Untag,
	"delete":   execIface.Delete,
	"rm":       execIface.Delete,
	"sync":     execIface.Sync,
	"status":   execIface.Status,
	"resync":   execIface.Resync,
}

// runREPL reads commands line by line from reader and dispatches them to a
// until EOF, "exit" or "quit". The prompt carries statusFn's summary.
// Handler errors are reported and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("tasks %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := strings.ToLower(parts[0]), parts[1:]

		switch cmd {
		case "help", "?":
			printlnFn(helpText)
			continue
		case "exit", "quit":
			printlnFn("Bye!")
			return
		}

		h, ok := commands[cmd]
		if !ok {
			printlnFn("Unknown command:", cmd)
			continue
		}
		if err := h(a, ctx, args); err != nil {
			printlnFn("Error:", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}
