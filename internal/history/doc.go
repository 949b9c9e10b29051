// Package history keeps an append-only SQLite ledger of finished decoder jobs.
//
// The ledger is for auditing and the history CLI. The daemon never reads it
// back to rebuild state: a file's stage directory remains the source of truth.
package history
