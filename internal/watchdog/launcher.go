package watchdog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"inboxwatch/internal/decoder"
	"inboxwatch/internal/fileutil"
	"inboxwatch/internal/logging"
)

// disposition tells the tick what to do with a queue entry that did not
// become a running job.
type disposition int

const (
	keepQueued disposition = iota
	dropQueued
)

// promoteLocked moves a stable file from the inbox into the work directory
// and starts its decoder. A nil job with keepQueued means the move failed and
// should be retried next tick. A nil job with dropQueued means the file is
// gone from the inbox, either externally or because the decoder could not be
// started and the file was quarantined.
func (s *Scheduler) promoteLocked(name string, now time.Time) (*Job, disposition) {
	inboxPath := filepath.Join(s.cfg.inboxDir, name)
	workPath := filepath.Join(s.cfg.workDir, name)

	if _, err := os.Lstat(workPath); err == nil {
		logging.WarnWithContext(s.logger, "promotion deferred; work file already exists", "promote_conflict",
			logging.File(name),
			logging.String("work_path", workPath),
			logging.String(logging.FieldErrorHint, "reconcile the leftover work file, then touch the inbox file"),
			logging.String(logging.FieldImpact, "file stays queued in the inbox"),
		)
		return nil, keepQueued
	}

	if err := fileutil.Move(inboxPath, workPath); err != nil {
		if _, statErr := os.Lstat(inboxPath); errors.Is(statErr, fs.ErrNotExist) {
			logging.WarnWithContext(s.logger, "queued file disappeared from inbox", "promote_missing",
				logging.File(name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the file was removed or renamed by another process"),
				logging.String(logging.FieldImpact, "file dropped from the queue"),
			)
			return nil, dropQueued
		}
		logging.WarnWithContext(s.logger, "move to work directory failed; will retry", "promote_failed",
			logging.File(name),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions and free space on the work directory"),
			logging.String(logging.FieldImpact, "file stays queued and is retried next tick"),
		)
		return nil, keepQueued
	}

	job := &Job{
		ID:         uuid.NewString(),
		Name:       name,
		WorkPath:   workPath,
		OutputPath: decoder.OutputPath(s.cfg.resultsDir, name, s.cfg.extension, s.cfg.destExtension),
		StartedAt:  now,
	}
	job.Command = decoder.BuildCommand(s.cfg.decoder, job.WorkPath, job.OutputPath)
	if s.cfg.jobLogDir != "" {
		job.LogPath = filepath.Join(s.cfg.jobLogDir, name+".log")
	}

	proc, err := s.runner.Start(s.jobCtx, job.Command, job.LogPath)
	if err != nil {
		s.quarantineLaunchFailure(job, err, now)
		return nil, dropQueued
	}
	job.Process = proc

	s.logger.Info("decoder started",
		logging.File(name),
		logging.String("job_id", job.ID),
		logging.Int(logging.FieldPID, proc.PID()),
		logging.String("command", job.Command.String()),
		logging.String(logging.FieldEventType, "job_started"),
	)
	return job, dropQueued
}

func (s *Scheduler) quarantineLaunchFailure(job *Job, startErr error, now time.Time) {
	errorPath := filepath.Join(s.cfg.errorDir, job.Name)
	result := Result{
		JobID:      job.ID,
		Name:       job.Name,
		WorkPath:   job.WorkPath,
		OutputPath: job.OutputPath,
		FinalPath:  errorPath,
		Command:    job.Command.String(),
		StartedAt:  now,
		FinishedAt: now,
		ExitCode:   -1,
		Outcome:    OutcomeLaunchFailed,
		Err:        startErr,
	}

	if err := fileutil.Move(job.WorkPath, errorPath); err != nil {
		result.FinalPath = job.WorkPath
		logging.ErrorWithContext(s.logger, "decoder failed to start and file could not be quarantined", "launch_failed",
			logging.File(job.Name),
			logging.String("command", job.Command.String()),
			logging.Any("start_error", startErr),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, fmt.Sprintf("fix decoder.program, then move %s back to the inbox", job.WorkPath)),
		)
	} else {
		logging.ErrorWithContext(s.logger, "decoder failed to start; file quarantined", "launch_failed",
			logging.File(job.Name),
			logging.String("command", job.Command.String()),
			logging.Error(startErr),
			logging.String("error_path", errorPath),
			logging.String(logging.FieldErrorHint, "check decoder.program and run inboxwatch status"),
		)
	}
	s.finished = append(s.finished, result)
}
