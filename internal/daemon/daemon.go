package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"inboxwatch/internal/config"
	"inboxwatch/internal/decoder"
	"inboxwatch/internal/history"
	"inboxwatch/internal/logging"
	"inboxwatch/internal/preflight"
	"inboxwatch/internal/watchdog"
	"inboxwatch/internal/watcher"
)

// ErrAlreadyRunning is returned when another daemon holds the state lock.
var ErrAlreadyRunning = errors.New("another inboxwatch daemon instance is already running")

// Option configures a Daemon.
type Option func(*Daemon)

// WithRunner overrides the decoder process runner (primarily for tests).
func WithRunner(runner decoder.Runner) Option {
	return func(d *Daemon) {
		if runner != nil {
			d.runner = runner
		}
	}
}

// WithClock overrides the scheduler clock (primarily for tests).
func WithClock(clock watchdog.Clock) Option {
	return func(d *Daemon) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithRunID sets the identifier stamped on history rows for this run.
func WithRunID(id string) Option {
	return func(d *Daemon) {
		d.runID = id
	}
}

// WithMaintenance registers a periodic task run while the daemon is up,
// such as log retention.
func WithMaintenance(interval time.Duration, task func()) Option {
	return func(d *Daemon) {
		if interval > 0 && task != nil {
			d.maintenanceEvery = interval
			d.maintenance = task
		}
	}
}

// WithStarted registers a hook that runs once the daemon lock is held and
// before anything else starts. An error from the hook aborts Run. Process
// side effects such as PID files belong here so a refused second instance
// leaves the running one untouched.
func WithStarted(hook func() error) Option {
	return func(d *Daemon) {
		d.started = hook
	}
}

// Daemon owns one watch-and-decode session.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	runner decoder.Runner
	clock  watchdog.Clock
	runID  string
	lock   *flock.Flock

	started          func() error
	maintenance      func()
	maintenanceEvery time.Duration

	ready chan *watchdog.Scheduler
}

// New constructs a daemon for cfg.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	d := &Daemon{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "daemon"),
		runner: decoder.ExecRunner{},
		clock:  watchdog.RealClock(),
		lock:   flock.New(cfg.LockPath()),
		ready:  make(chan *watchdog.Scheduler, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Scheduler blocks until Run has started the scheduler or ctx ends.
func (d *Daemon) Scheduler(ctx context.Context) (*watchdog.Scheduler, error) {
	select {
	case sched := <-d.ready:
		d.ready <- sched
		return sched, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run watches the inbox until ctx is cancelled. It returns an error when the
// daemon cannot start: lock held, fatal preflight failure, or watch setup
// failure. Per-file problems are logged and never end Run.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
				logging.Error(err),
				logging.String("lock", d.cfg.LockPath()),
			)
		}
	}()

	if d.started != nil {
		if err := d.started(); err != nil {
			return err
		}
	}

	if err := d.runPreflight(); err != nil {
		return err
	}

	w, err := watcher.New(d.cfg.Paths.InboxDir, d.cfg.Watch.Extension, d.logger)
	if err != nil {
		return err
	}

	schedOpts := []watchdog.Option{watchdog.WithClock(d.clock)}
	if jobLedger := d.openLedger(); jobLedger != nil {
		defer jobLedger.close()
		schedOpts = append(schedOpts, watchdog.WithObserver(jobLedger))
	}

	// Decoders outlive a cancelled run context so shutdown can stop the
	// scheduler before they are terminated.
	jobCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelJobs()
	schedOpts = append(schedOpts, watchdog.WithJobContext(jobCtx))

	sched := watchdog.New(d.cfg, d.runner, d.logger, schedOpts...)
	d.reportLeftovers()
	if d.cfg.Watch.ScanExisting {
		d.scanInbox(sched)
	}
	d.ready <- sched

	d.logger.Info("inboxwatch daemon started",
		logging.String(logging.FieldRunID, d.runID),
		logging.String("inbox", d.cfg.Paths.InboxDir),
		logging.Duration("tick_interval", d.cfg.TickInterval()),
		logging.Duration("stabilization_threshold", d.cfg.StabilizationThreshold()),
		logging.Int("max_concurrent_jobs", d.cfg.Scheduler.MaxConcurrentJobs),
		logging.String("lock", d.cfg.LockPath()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := w.Run(gctx, sched); err != nil {
			return err
		}
		if gctx.Err() == nil {
			return errors.New("inbox watcher stopped unexpectedly")
		}
		return nil
	})
	if d.maintenance != nil {
		g.Go(func() error {
			ticker := time.NewTicker(d.maintenanceEvery)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					d.maintenance()
				}
			}
		})
	}
	runErr := g.Wait()

	for _, job := range sched.Close() {
		logging.WarnWithContext(d.logger, "decoder interrupted by shutdown", "job_interrupted",
			logging.File(job.Name),
			logging.Int(logging.FieldPID, job.PID),
			logging.Duration("runtime", d.clock.Now().Sub(job.StartedAt)),
			logging.String(logging.FieldErrorHint, "move the file from the work directory back to the inbox to retry"),
			logging.String(logging.FieldImpact, "file stays in the work directory"),
		)
	}
	cancelJobs()

	if runErr != nil {
		logging.ErrorWithContext(d.logger, "inboxwatch daemon stopped with error", "daemon_failed",
			logging.Error(runErr),
			logging.String(logging.FieldErrorHint, "check that the inbox directory still exists"),
		)
		return runErr
	}
	d.logger.Info("inboxwatch daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	return nil
}

func (d *Daemon) runPreflight() error {
	results := preflight.RunAll(d.cfg)
	for _, r := range results {
		if r.Passed {
			d.logger.Debug("preflight check passed", logging.String("check", r.Name), logging.String("detail", r.Detail))
			continue
		}
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.Bool("fatal", r.Fatal),
			logging.String(logging.FieldErrorHint, "run inboxwatch status for details"),
		)
	}
	if failed := preflight.FatalFailures(results); len(failed) > 0 {
		return fmt.Errorf("preflight: %s: %s", failed[0].Name, failed[0].Detail)
	}
	return nil
}

func (d *Daemon) openLedger() *ledger {
	if !d.cfg.History.Enabled {
		return nil
	}
	store, err := history.Open(d.cfg.HistoryPath())
	if err != nil {
		logging.WarnWithContext(d.logger, "job history unavailable", "history_open_failed",
			logging.Error(err),
			logging.String("path", d.cfg.HistoryPath()),
			logging.String(logging.FieldErrorHint, "delete the history database or set history.enabled = false"),
			logging.String(logging.FieldImpact, "jobs are processed but not recorded"),
		)
		return nil
	}
	d.logger.Debug("job history opened", logging.String("path", store.Path()))
	return &ledger{store: store, runID: d.runID, logger: d.logger}
}

func (d *Daemon) scanInbox(sched *watchdog.Scheduler) {
	names, err := watcher.ScanExisting(d.cfg.Paths.InboxDir, d.cfg.Watch.Extension, sched)
	if err != nil {
		logging.WarnWithContext(d.logger, "inbox scan failed", "inbox_scan_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "files already in the inbox wait for their next write"),
		)
		return
	}
	if len(names) > 0 {
		d.logger.Info("queued existing inbox files",
			logging.Int("count", len(names)),
			logging.String(logging.FieldEventType, "inbox_scanned"),
		)
	}
}

func (d *Daemon) reportLeftovers() {
	files, err := watcher.ListFiles(d.cfg.Paths.WorkDir)
	if err != nil {
		return
	}
	for _, f := range files {
		logging.WarnWithContext(d.logger, "file left in work directory by an earlier run", "work_leftover",
			logging.File(f.Name()),
			logging.Int64("size", f.Size()),
			logging.Time("modified", f.ModTime()),
			logging.String(logging.FieldErrorHint, "run inboxwatch reconcile; move it back to the inbox to retry"),
			logging.String(logging.FieldImpact, "file is not processed until reconciled"),
		)
	}
}

// IsRunning reports whether another process holds the daemon lock for cfg.
func IsRunning(cfg *config.Config) (bool, error) {
	probe := flock.New(cfg.LockPath())
	ok, err := probe.TryLock()
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return false, probe.Unlock()
}
