// Command inboxwatch watches an inbox directory for measurement files, runs
// the configured decoder on each file once it stops changing, and routes the
// original to the archive or error directory by exit status.
package main
