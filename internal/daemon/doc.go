// Package daemon coordinates the long-running inboxwatch process.
//
// It wires configuration, preflight checks, the inbox watcher, the scheduler,
// and the optional job history into a single lifecycle with flock-based
// locking to prevent multiple instances against the same state directory.
//
// Keep orchestration logic here: stabilization, launching, and supervision
// live in the watchdog package while the daemon focuses on startup, shutdown,
// and reconciliation of files left behind by an earlier run.
package daemon
