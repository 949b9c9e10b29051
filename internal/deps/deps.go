// Package deps reports whether the external programs inboxwatch launches are
// installed.
package deps

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"

	"inboxwatch/internal/config"
)

// Requirement defines an external program inboxwatch relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
}

// Status reports the availability of a dependency.
type Status struct {
	Requirement
	Available bool
	// Path is the resolved executable when Available.
	Path      string
	Detail    string
}

// DecoderRequirement describes the configured decode program.
func DecoderRequirement(cfg config.Decoder) Requirement {
	return Requirement{
		Name:        "Decoder",
		Command:     cfg.Program,
		Description: "Decodes measurement files",
	}
}

// Requirements lists the programs a daemon running with cfg launches.
func Requirements(cfg config.Decoder) []Requirement {
	return []Requirement{DecoderRequirement(cfg)}
}

// Check resolves one requirement. Commands containing a path separator are
// checked as-is; bare names are resolved through PATH.
func Check(req Requirement) Status {
	req.Command = strings.TrimSpace(req.Command)
	req.Description = strings.TrimSpace(req.Description)
	status := Status{Requirement: req}
	if req.Command == "" {
		status.Detail = "command not configured"
		return status
	}

	resolved, err := exec.LookPath(req.Command)
	switch {
	case err == nil:
		status.Available = true
		status.Path = resolved
	case errors.Is(err, fs.ErrPermission):
		status.Detail = fmt.Sprintf("%q is not executable", req.Command)
	default:
		status.Detail = fmt.Sprintf("binary %q not found", req.Command)
	}
	return status
}

// CheckBinaries evaluates the provided requirements in order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, Check(req))
	}
	return results
}
