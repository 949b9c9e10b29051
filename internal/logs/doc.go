// Package logs reads daemon and per-job log files for the CLI: the last N
// lines of a file, then optionally new lines as they are appended.
package logs
