package preflight

import (
	"inboxwatch/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Fatal marks checks whose failure should stop the daemon from starting.
	Fatal bool
}

// minFreeBytes is the free space below which the work and results
// filesystems are reported as failing.
const minFreeBytes = 512 << 20

// RunAll executes every preflight check for the given config.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	for _, dir := range cfg.StageDirs() {
		result := CheckDirectoryAccess(stageLabel(dir.Name), dir.Path)
		result.Fatal = true
		results = append(results, result)
	}
	results = append(results,
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckFreeSpace("Work filesystem", cfg.Paths.WorkDir, minFreeBytes),
		CheckFreeSpace("Results filesystem", cfg.Paths.ResultsDir, minFreeBytes),
	)
	return append(results, CheckDependencies(cfg.Decoder)...)
}

// FatalFailures returns the failed results marked Fatal.
func FatalFailures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Fatal && !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

func stageLabel(name string) string {
	switch name {
	case "inbox":
		return "Inbox directory"
	case "work":
		return "Work directory"
	case "results":
		return "Results directory"
	case "archive":
		return "Archive directory"
	case "error":
		return "Error directory"
	default:
		return name + " directory"
	}
}
