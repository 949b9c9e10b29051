package watchdog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"inboxwatch/internal/config"
	"inboxwatch/internal/decoder"
	"inboxwatch/internal/logging"
)

// State is the scheduler's tick state.
type State int

const (
	// Stopped means no tick is pending; the queue and registry are empty.
	Stopped State = iota
	// Ticking means a tick is scheduled.
	Ticking
)

func (s State) String() string {
	if s == Ticking {
		return "ticking"
	}
	return "stopped"
}

// Observer receives terminal job results. Calls happen on the tick goroutine
// after the scheduler lock is released, one at a time. Implementations may
// block without stalling Record.
type Observer interface {
	JobFinished(Result)
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	State   State
	Queued  []QueueEntry
	Running []JobInfo
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock injects a clock (primarily for tests).
func WithClock(clock Clock) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithObserver registers a job result observer.
func WithObserver(observer Observer) Option {
	return func(s *Scheduler) {
		s.observer = observer
	}
}

// WithJobContext sets the context decoder processes are bound to. Cancelling
// it terminates running decoders.
func WithJobContext(ctx context.Context) Option {
	return func(s *Scheduler) {
		if ctx != nil {
			s.jobCtx = ctx
		}
	}
}

type settings struct {
	inboxDir      string
	workDir       string
	resultsDir    string
	archiveDir    string
	errorDir      string
	extension     string
	destExtension string
	decoder       config.Decoder
	jobLogDir     string
	tickInterval  time.Duration
	threshold     time.Duration
	stuckAfter    time.Duration
	killAfter     time.Duration
}

// Scheduler drives stabilization, launch, and supervision of inbox files.
type Scheduler struct {
	cfg      settings
	runner   decoder.Runner
	clock    Clock
	logger   *slog.Logger
	observer Observer
	jobCtx   context.Context
	slots    *semaphore.Weighted

	mu       sync.Mutex
	queue    *activityQueue
	jobs     *jobRegistry
	state    State
	timer    Timer
	gen      uint64
	closed   bool
	finished []Result

	notifyMu sync.Mutex
}

// New constructs a Scheduler in the Stopped state.
func New(cfg *config.Config, runner decoder.Runner, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg: settings{
			inboxDir:      cfg.Paths.InboxDir,
			workDir:       cfg.Paths.WorkDir,
			resultsDir:    cfg.Paths.ResultsDir,
			archiveDir:    cfg.Paths.ArchiveDir,
			errorDir:      cfg.Paths.ErrorDir,
			extension:     cfg.Watch.Extension,
			destExtension: cfg.Watch.DestinationExtension,
			decoder:       cfg.Decoder,
			tickInterval:  cfg.TickInterval(),
			threshold:     cfg.StabilizationThreshold(),
			stuckAfter:    cfg.StuckAfter(),
			killAfter:     cfg.KillAfter(),
		},
		runner: runner,
		clock:  RealClock(),
		logger: logging.NewComponentLogger(logger, "watchdog"),
		jobCtx: context.Background(),
		queue:  newActivityQueue(),
		jobs:   newJobRegistry(),
		state:  Stopped,
	}
	if cfg.Decoder.CaptureOutput {
		s.cfg.jobLogDir = cfg.JobLogDir()
	}
	if limit := cfg.Scheduler.MaxConcurrentJobs; limit > 0 {
		s.slots = semaphore.NewWeighted(int64(limit))
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record notes activity on an inbox file and starts ticking if the scheduler
// was stopped.
func (s *Scheduler) Record(name string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.jobs.has(name) {
		logging.WarnWithContext(s.logger, "activity ignored for file already being decoded", "activity_ignored",
			logging.File(name),
			logging.String(logging.FieldErrorHint, "rewrite the file after the running job finishes or restart with scan_existing"),
			logging.String(logging.FieldImpact, "the new inbox copy is not queued"),
		)
		return
	}

	if s.queue.record(name, at) {
		s.logger.Info("file queued",
			logging.File(name),
			logging.String(logging.FieldEventType, "file_queued"),
		)
	} else {
		s.logger.Debug("activity refreshed", logging.File(name), logging.Time("last_activity", at))
	}

	if s.state == Stopped {
		s.state = Ticking
		s.scheduleLocked()
		s.logger.Debug("scheduler started", logging.String(logging.FieldEventType, "scheduler_started"))
	}
}

// Tick runs one evaluation pass: promote stable files, poll running jobs,
// then either schedule the next tick or stop. Calling Tick with nothing
// queued or running changes nothing.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.tickLocked()
	finished := s.takeFinishedLocked()
	s.mu.Unlock()

	s.notify(finished)
}

func (s *Scheduler) tickFromTimer(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.tickLocked()
	finished := s.takeFinishedLocked()
	s.mu.Unlock()

	s.notify(finished)
}

func (s *Scheduler) tickLocked() {
	if s.queue.len() == 0 && s.jobs.len() == 0 {
		s.stopLocked()
		return
	}

	now := s.clock.Now()
	promoted, deferred := s.promoteStableLocked(now)

	s.logger.Debug("tick",
		logging.Int("queued", s.queue.len()),
		logging.Int("promoted", promoted),
		logging.Int("deferred", deferred),
		logging.Int("running", s.jobs.len()),
	)

	freed := false
	for _, name := range s.jobs.names() {
		job, _ := s.jobs.get(name)
		held := job.holdsSlot
		if s.pollLocked(job, s.clock.Now()) {
			s.jobs.remove(name)
		}
		if held && !job.holdsSlot {
			freed = true
		}
	}

	// Files deferred for want of a slot launch in the tick that frees one.
	if freed && deferred > 0 {
		more, _ := s.promoteStableLocked(now)
		if more > 0 {
			s.logger.Debug("deferred files promoted", logging.Int("promoted", more))
		}
	}

	if s.queue.len() == 0 && s.jobs.len() == 0 {
		s.stopLocked()
		return
	}
	s.state = Ticking
	s.scheduleLocked()
}

// promoteStableLocked launches every queued file idle for at least the
// stabilization threshold as of now. Files that are stable but find no free
// slot stay queued and are counted as deferred.
func (s *Scheduler) promoteStableLocked(now time.Time) (promoted, deferred int) {
	for _, name := range s.queue.names() {
		last, ok := s.queue.lastActivity(name)
		if !ok || now.Sub(last) < s.cfg.threshold {
			continue
		}
		if s.slots != nil && !s.slots.TryAcquire(1) {
			deferred++
			continue
		}
		job, disposition := s.promoteLocked(name, now)
		if job != nil {
			job.holdsSlot = s.slots != nil
			s.queue.remove(name)
			s.jobs.add(job)
			promoted++
			continue
		}
		if s.slots != nil {
			s.slots.Release(1)
		}
		if disposition != keepQueued {
			s.queue.remove(name)
		}
	}
	return promoted, deferred
}

func (s *Scheduler) scheduleLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.cfg.tickInterval, func() { s.tickFromTimer(gen) })
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	if s.state != Stopped {
		s.logger.Debug("scheduler stopped", logging.String(logging.FieldEventType, "scheduler_stopped"))
	}
	s.state = Stopped
}

// State reports whether a tick is pending.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a snapshot of queued files and running jobs.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{State: s.state, Queued: s.queue.snapshot(), Running: s.jobs.snapshot()}
}

// Close stops ticking and ignores further activity. Jobs still registered
// are returned; their files remain in the work directory.
func (s *Scheduler) Close() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.stopLocked()
	s.closed = true
	return s.jobs.snapshot()
}
