// Package cli provides the interactive tasksync command-line client.
//
// It wires configuration, the local store, the sync service and an
// interactive REPL. Background sync runs on the scheduler while the REPL is
// open; the config file is watched so that a new token or server takes
// effect without a restart.
//
// Commands:
//   - lists, tags, tasks: browse local data
//   - addlist, addtag, addtask, done, rename, describe, priority, due,
//     tag, untag, delete: edit it
//   - sync, status, resync: talk to the server
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App and runREPL for details.
package cli
