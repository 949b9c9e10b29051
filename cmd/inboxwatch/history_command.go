package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"inboxwatch/internal/history"
	"inboxwatch/internal/watchdog"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var outcome string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished decoder jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			outcome = strings.TrimSpace(outcome)
			if err := validateOutcome(outcome); err != nil {
				return err
			}
			if !cfg.History.Enabled {
				return fmt.Errorf("job history is disabled (history.enabled = false)")
			}

			out := cmd.OutOrStdout()
			if _, err := os.Stat(cfg.HistoryPath()); os.IsNotExist(err) {
				fmt.Fprintln(out, "No jobs recorded yet")
				return nil
			}
			store, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), history.Filter{Outcome: outcome, Limit: limit})
			if err != nil {
				return fmt.Errorf("list history: %w", err)
			}
			if asJSON {
				return writeJSON(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No matching jobs")
				return nil
			}
			fmt.Fprintln(out, renderTable(historyTable(entries)))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to show (0 for all)")
	cmd.Flags().StringVar(&outcome, "outcome", "", "Only show jobs with this outcome (archived, failed, launch_failed)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")
	return cmd
}

func validateOutcome(outcome string) error {
	switch watchdog.Outcome(outcome) {
	case "", watchdog.OutcomeArchived, watchdog.OutcomeFailed, watchdog.OutcomeLaunchFailed:
		return nil
	default:
		return fmt.Errorf("unknown outcome %q (want archived, failed, or launch_failed)", outcome)
	}
}

func historyTable(entries []history.Entry) tableSpec {
	spec := tableSpec{
		Headers: []string{"Finished", "File", "Outcome", "Exit", "Runtime", "Error"},
		Aligns:  []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	}
	for _, e := range entries {
		exit := strconv.Itoa(e.ExitCode)
		if e.Outcome == string(watchdog.OutcomeLaunchFailed) {
			exit = "-"
		}
		spec.Rows = append(spec.Rows, []string{
			e.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			e.FileName,
			e.Outcome,
			exit,
			formatRuntime(e.FinishedAt.Sub(e.StartedAt)),
			truncate(e.Error, 48),
		})
	}
	spec.Footer = []string{"", fmt.Sprintf("%d jobs", len(entries))}
	return spec
}

func formatRuntime(d time.Duration) string {
	if d < 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	return value[:max-3] + "..."
}
