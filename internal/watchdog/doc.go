// Package watchdog turns inbox activity into supervised decoder jobs.
//
// The Scheduler owns three pieces of state behind one mutex: the activity
// queue (filename to last observed activity), the job registry (filename to
// running decoder), and a Stopped/Ticking flag. The directory watcher feeds
// Record; a timer drives Tick while either collection is non-empty and stops
// itself once both drain. Each tick promotes files that have been idle for
// the stabilization threshold, then polls running jobs without blocking and
// routes finished files to the archive or error directory.
//
// A file's directory is its durable stage record. Nothing here is persisted,
// so a restart relies on the inbox scan and manual reconciliation of the work
// directory.
package watchdog
