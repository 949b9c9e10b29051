// Package preflight provides readiness checks for the directories and the
// decoder program inboxwatch depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs every failure. Directory
//     failures abort startup; a missing decoder is reported but tolerated
//     because each launch failure is quarantined per file.
//   - The CLI "inboxwatch status" command prints every result.
package preflight
