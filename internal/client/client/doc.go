// Package client contains client-side building blocks for tasksync.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic contract (see the Client interface) for one sync
//     round trip plus a liveness check.
//  2. Two implementations: HTTPClient (JSON over HTTP) and GRPCClient (the
//     same messages over gRPC with a JSON codec). Both send the bearer token
//     and map transport failures onto the sentinel errors below.
//  3. The local store bootstrap (InitDatabase, RunMigrations, Store.InTx)
//     that opens SQLite and applies embedded goose migrations.
//
// # Error Handling
//
// Common conditions are exposed as sentinel errors that callers can match with
// errors.Is: ErrUnavailable, ErrUnauthorized, ErrRejected,
// ErrLocalDataNotAvailable, ErrNotConfigured and ErrWatermarkRegression.
//
// Concurrency & Contexts
//
// Clients are safe for concurrent use. All operations accept
// context.Context and honor cancellation and timeouts.
//
// See Also
//
//   - Interface:  Client
//   - Transports: HTTPClient, GRPCClient
//   - DB helpers: InitDatabase, RunMigrations, Store
package client
