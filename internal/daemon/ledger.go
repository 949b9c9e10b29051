package daemon

import (
	"context"
	"log/slog"
	"time"

	"inboxwatch/internal/history"
	"inboxwatch/internal/logging"
	"inboxwatch/internal/watchdog"
)

// ledger records finished jobs in the history store.
type ledger struct {
	store  *history.Store
	runID  string
	logger *slog.Logger
}

func (l *ledger) JobFinished(result watchdog.Result) {
	entry := history.Entry{
		JobID:      result.JobID,
		RunID:      l.runID,
		FileName:   result.Name,
		WorkPath:   result.WorkPath,
		OutputPath: result.OutputPath,
		FinalPath:  result.FinalPath,
		Command:    result.Command,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		ExitCode:   result.ExitCode,
		Outcome:    string(result.Outcome),
	}
	if result.Err != nil {
		entry.Error = result.Err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.store.Record(ctx, entry); err != nil {
		logging.WarnWithContext(l.logger, "failed to record job history", "history_write_failed",
			logging.File(result.Name),
			logging.String(logging.FieldOutcome, string(result.Outcome)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "job is missing from inboxwatch history"),
		)
	}
}

func (l *ledger) close() {
	if err := l.store.Close(); err != nil {
		l.logger.Debug("close history store", logging.Error(err))
	}
}
