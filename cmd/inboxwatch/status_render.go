package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"inboxwatch/internal/preflight"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

var statusStyles = map[statusKind]struct {
	label string
	color string
}{
	statusInfo:  {label: "INFO", color: ansiBlue},
	statusOK:    {label: "OK", color: ansiGreen},
	statusWarn:  {label: "WARN", color: ansiYellow},
	statusError: {label: "ERROR", color: ansiRed},
}

// statusReport accumulates the sections printed by the status command.
type statusReport struct {
	colorize bool
	lines    []string
}

func newStatusReport(w io.Writer) *statusReport {
	return &statusReport{colorize: shouldColorize(w)}
}

func (r *statusReport) paint(color, s string) string {
	if !r.colorize || color == "" {
		return s
	}
	return color + s + ansiReset
}

func (r *statusReport) section(title string) {
	if len(r.lines) > 0 {
		r.lines = append(r.lines, "")
	}
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	r.lines = append(r.lines, r.paint(ansiBlue, line), r.paint(ansiBlue, strings.Repeat("-", len(line))))
}

func (r *statusReport) add(label string, kind statusKind, message string) {
	r.lines = append(r.lines, r.line(label, kind, message))
}

func (r *statusReport) line(label string, kind statusKind, message string) string {
	style := statusStyles[kind]
	text := "[" + style.label + "]"
	if message != "" {
		text += " " + message
	}
	return r.paint(style.color, fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", text))
}

func (r *statusReport) String() string {
	return strings.Join(r.lines, "\n")
}

// addPreflight appends a summary line and one line per check. Non-fatal
// failures render as warnings.
func (r *statusReport) addPreflight(results []preflight.Result) {
	failed, fatal := 0, 0
	kinds := make([]statusKind, len(results))
	for i, res := range results {
		kinds[i] = statusOK
		if res.Passed {
			continue
		}
		failed++
		kinds[i] = statusWarn
		if res.Fatal {
			fatal++
			kinds[i] = statusError
		}
	}

	summaryKind := statusOK
	summary := fmt.Sprintf("%d of %d checks passed", len(results)-failed, len(results))
	switch {
	case fatal > 0:
		summaryKind = statusError
		summary += "; daemon will not start"
	case failed > 0:
		summaryKind = statusWarn
	}
	r.add("Summary", summaryKind, summary)
	for i, res := range results {
		r.add(res.Name, kinds[i], res.Detail)
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
