package decoder

import (
	"path/filepath"
	"strconv"
	"strings"

	"inboxwatch/internal/config"
)

// Command is a fully resolved decoder invocation.
type Command struct {
	Program string
	Args    []string
}

// BuildCommand assembles the decoder invocation for one work file.
func BuildCommand(cfg config.Decoder, workPath, outputPath string) Command {
	args := make([]string, 0, len(cfg.Flags)+4)
	args = append(args, cfg.Flags...)
	args = append(args, cfg.InputFlag, workPath, cfg.OutputFlag, outputPath)
	return Command{Program: cfg.Program, Args: args}
}

// String renders the command line for logs and the job history.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quoteArg(c.Program))
	for _, arg := range c.Args {
		parts = append(parts, quoteArg(arg))
	}
	return strings.Join(parts, " ")
}

func quoteArg(arg string) string {
	if arg == "" {
		return `""`
	}
	if strings.ContainsAny(arg, " \t\n\"'\\$") {
		return strconv.Quote(arg)
	}
	return arg
}

// OutputPath returns the results path for an inbox filename: the watched
// extension is replaced by the destination extension.
func OutputPath(resultsDir, name, watchedExt, destExt string) string {
	stem := strings.TrimSuffix(name, watchedExt)
	if stem == "" {
		stem = name
	}
	return filepath.Join(resultsDir, stem+destExt)
}
