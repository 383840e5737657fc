// Package daemon coordinates the long-running autocheck process.
//
// It wires the profile store, check-in client, notification provider, run
// history and job runner to the daily scheduler, enforces single-instance
// execution with a flock-based lock, and exposes the operations that the IPC
// server and the optional HTTP status API call into.
//
// Keep orchestration here: check-in semantics live in internal/checkin and
// run semantics in internal/runner, while the daemon focuses on startup,
// shutdown, reloads and high level coordination.
package daemon
