package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"inboxwatch/internal/config"
	"inboxwatch/internal/daemon"
	"inboxwatch/internal/daemonrun"
	"inboxwatch/internal/history"
	"inboxwatch/internal/preflight"
	"inboxwatch/internal/watchdog"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, preflight, and job history status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			report := newStatusReport(out)
			report.section("Daemon")
			addDaemonStatus(report, cfg)
			report.section("Preflight")
			report.addPreflight(preflight.RunAll(cfg))
			report.section("History")
			addHistoryStatus(cmd.Context(), report, cfg)

			fmt.Fprintln(out, report.String())
			return nil
		},
	}
}

func addDaemonStatus(report *statusReport, cfg *config.Config) {
	running, err := daemon.IsRunning(cfg)
	switch {
	case err != nil:
		report.add("inboxwatch", statusWarn, fmt.Sprintf("unable to probe lock: %v", err))
	case !running:
		report.add("inboxwatch", statusError, "Not running")
	default:
		message := "Running"
		if pid, err := daemonrun.ReadPID(cfg); err == nil && pid > 0 {
			message = fmt.Sprintf("Running (pid %d)", pid)
		}
		report.add("inboxwatch", statusOK, message)
	}
}

func addHistoryStatus(ctx context.Context, report *statusReport, cfg *config.Config) {
	if !cfg.History.Enabled {
		report.add("Ledger", statusInfo, "disabled")
		return
	}
	if _, err := os.Stat(cfg.HistoryPath()); err != nil {
		report.add("Ledger", statusInfo, "no jobs recorded yet")
		return
	}
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		report.add("Ledger", statusWarn, err.Error())
		return
	}
	defer store.Close()

	counts, err := store.Counts(ctx)
	if err != nil {
		report.add("Ledger", statusWarn, err.Error())
		return
	}
	if len(counts) == 0 {
		report.add("Ledger", statusInfo, "no jobs recorded yet")
		return
	}
	outcomes := make([]string, 0, len(counts))
	for outcome := range counts {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)
	for _, outcome := range outcomes {
		kind := statusOK
		if outcome != string(watchdog.OutcomeArchived) {
			kind = statusWarn
		}
		report.add(outcome, kind, strconv.Itoa(counts[outcome]))
	}
}
