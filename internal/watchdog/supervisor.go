package watchdog

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"inboxwatch/internal/fileutil"
	"inboxwatch/internal/logging"
)

// Outcome classifies how a job ended.
type Outcome string

const (
	// OutcomeArchived means the decoder exited 0 and the file was archived.
	OutcomeArchived Outcome = "archived"
	// OutcomeFailed means the decoder exited non-zero or was killed.
	OutcomeFailed Outcome = "failed"
	// OutcomeLaunchFailed means the decoder could not be started.
	OutcomeLaunchFailed Outcome = "launch_failed"
)

// Result describes a job that reached a terminal location.
type Result struct {
	JobID      string
	Name       string
	WorkPath   string
	OutputPath string
	FinalPath  string
	Command    string
	StartedAt  time.Time
	FinishedAt time.Time
	ExitCode   int
	Killed     bool
	Outcome    Outcome
	Err        error
}

// pollLocked checks job without blocking. It reports true once the job's file
// has been routed to its terminal directory and the job can be dropped.
func (s *Scheduler) pollLocked(job *Job, now time.Time) bool {
	if !job.exited {
		state, done := job.Process.Poll()
		if !done {
			s.enforceRuntimeLimits(job, now)
			return false
		}
		job.exited = true
		job.exit = state
		job.finishedAt = now
		if job.holdsSlot {
			s.slots.Release(1)
			job.holdsSlot = false
		}
	}

	outcome := OutcomeFailed
	destDir := s.cfg.errorDir
	if job.exit.Success() && !job.killed {
		outcome = OutcomeArchived
		destDir = s.cfg.archiveDir
	}
	finalPath := filepath.Join(destDir, job.Name)

	if _, err := os.Lstat(finalPath); err == nil {
		logging.WarnWithContext(s.logger, "routing deferred; terminal file already exists", "route_conflict",
			logging.File(job.Name),
			logging.String(logging.FieldOutcome, string(outcome)),
			logging.String("destination", finalPath),
			logging.String(logging.FieldErrorHint, "move the existing file out of the archive or error directory"),
			logging.String(logging.FieldImpact, "job stays registered and routing is retried next tick"),
		)
		return false
	}

	if err := fileutil.Move(job.WorkPath, finalPath); err != nil {
		if _, statErr := os.Lstat(job.WorkPath); !errors.Is(statErr, fs.ErrNotExist) {
			logging.WarnWithContext(s.logger, "move to terminal directory failed; will retry", "route_failed",
				logging.File(job.Name),
				logging.String(logging.FieldOutcome, string(outcome)),
				logging.String("destination", finalPath),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions and free space on the archive and error directories"),
				logging.String(logging.FieldImpact, "job stays registered and routing is retried next tick"),
			)
			return false
		}
		logging.WarnWithContext(s.logger, "work file vanished before routing", "route_missing",
			logging.File(job.Name),
			logging.String(logging.FieldOutcome, string(outcome)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the work file was removed by another process"),
			logging.String(logging.FieldImpact, "job dropped without a terminal file"),
		)
		finalPath = ""
	}

	result := Result{
		JobID:      job.ID,
		Name:       job.Name,
		WorkPath:   job.WorkPath,
		OutputPath: job.OutputPath,
		FinalPath:  finalPath,
		Command:    job.Command.String(),
		StartedAt:  job.StartedAt,
		FinishedAt: job.finishedAt,
		ExitCode:   job.exit.ExitCode,
		Killed:     job.killed,
		Outcome:    outcome,
		Err:        job.exit.Err,
	}

	attrs := []logging.Attr{
		logging.File(job.Name),
		logging.String("job_id", job.ID),
		logging.String(logging.FieldOutcome, string(outcome)),
		logging.Int(logging.FieldExitCode, job.exit.ExitCode),
		logging.Duration("runtime", job.finishedAt.Sub(job.StartedAt)),
		logging.String("destination", finalPath),
	}
	if outcome == OutcomeArchived {
		attrs = append(attrs, logging.String("output", job.OutputPath), logging.String(logging.FieldEventType, "job_archived"))
		s.logger.Info("decoder finished", logging.Args(attrs...)...)
	} else {
		if job.exit.Err != nil {
			attrs = append(attrs, logging.Error(job.exit.Err))
		}
		attrs = append(attrs,
			logging.Bool("killed", job.killed),
			logging.String(logging.FieldImpact, "file quarantined in the error directory"),
			logging.String(logging.FieldErrorHint, jobFailureHint(job)),
		)
		logging.WarnWithContext(s.logger, "decoder failed", "job_failed", attrs...)
	}

	s.finished = append(s.finished, result)
	return true
}

// enforceRuntimeLimits reports a stuck decoder once and kills it when the
// kill limit is reached.
func (s *Scheduler) enforceRuntimeLimits(job *Job, now time.Time) {
	runtime := now.Sub(job.StartedAt)
	if s.cfg.stuckAfter > 0 && runtime >= s.cfg.stuckAfter && !job.stuckReported {
		job.stuckReported = true
		logging.WarnWithContext(s.logger, "decoder appears stuck", "job_stuck",
			logging.File(job.Name),
			logging.String("job_id", job.ID),
			logging.Int(logging.FieldPID, job.Process.PID()),
			logging.Duration("runtime", runtime),
			logging.Alert("stuck_job"),
			logging.String(logging.FieldErrorHint, "inspect the decoder process; set scheduler.kill_after to terminate automatically"),
			logging.String(logging.FieldImpact, "file stays in the work directory until the decoder exits"),
		)
	}
	if s.cfg.killAfter > 0 && runtime >= s.cfg.killAfter && !job.killed {
		if err := job.Process.Kill(); err != nil {
			logging.ErrorWithContext(s.logger, "failed to kill decoder; will retry", "job_kill_failed",
				logging.File(job.Name),
				logging.Int(logging.FieldPID, job.Process.PID()),
				logging.Error(err),
			)
			return
		}
		job.killed = true
		logging.WarnWithContext(s.logger, "decoder killed after exceeding runtime limit", "job_killed",
			logging.File(job.Name),
			logging.String("job_id", job.ID),
			logging.Int(logging.FieldPID, job.Process.PID()),
			logging.Duration("runtime", runtime),
			logging.String(logging.FieldErrorHint, "raise scheduler.kill_after if the decoder legitimately needs longer"),
			logging.String(logging.FieldImpact, "file will be quarantined in the error directory"),
		)
	}
}

func jobFailureHint(job *Job) string {
	if job.killed {
		return "decoder exceeded scheduler.kill_after"
	}
	if job.LogPath != "" {
		return "see decoder output in " + job.LogPath
	}
	return "enable decoder.capture_output to keep decoder output"
}

// takeFinishedLocked hands off the results collected since the last tick.
func (s *Scheduler) takeFinishedLocked() []Result {
	finished := s.finished
	s.finished = nil
	return finished
}

// notify delivers results to the observer. It must be called without s.mu
// held; notifyMu serializes observer calls from overlapping ticks.
func (s *Scheduler) notify(results []Result) {
	if s.observer == nil || len(results) == 0 {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	for _, result := range results {
		s.observer.JobFinished(result)
	}
}
