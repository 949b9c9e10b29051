package watchdog

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"inboxwatch/internal/config"
	"inboxwatch/internal/decoder"
	"inboxwatch/internal/testsupport"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Time
	f        func()
	done     bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{clock: c, deadline: c.now.Add(d), f: f}
	c.timers = append(c.timers, timer)
	return timer
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// Advance moves time forward and runs due callbacks synchronously.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	pending := c.timers[:0]
	for _, timer := range c.timers {
		switch {
		case timer.done:
		case !timer.deadline.After(c.now):
			timer.done = true
			due = append(due, timer)
		default:
			pending = append(pending, timer)
		}
	}
	c.timers = pending
	c.mu.Unlock()

	for _, timer := range due {
		timer.f()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, timer := range c.timers {
		if !timer.done {
			n++
		}
	}
	return n
}

type fakeProcess struct {
	mu      sync.Mutex
	pid     int
	exited  bool
	state   decoder.State
	killed  bool
	killErr error
}

func (p *fakeProcess) Poll() (decoder.State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.exited
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.killErr; err != nil {
		p.killErr = nil
		return err
	}
	p.killed = true
	if !p.exited {
		p.exited = true
		p.state = decoder.State{ExitCode: -1}
	}
	return nil
}

func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) exit(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exited = true
	p.state = decoder.State{ExitCode: code}
}

type startedProcess struct {
	cmd     decoder.Command
	logPath string
	proc    *fakeProcess
}

type fakeRunner struct {
	mu       sync.Mutex
	started  []startedProcess
	startErr error
}

func (r *fakeRunner) Start(_ context.Context, cmd decoder.Command, logPath string) (decoder.Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return nil, r.startErr
	}
	proc := &fakeProcess{pid: 1000 + len(r.started)}
	r.started = append(r.started, startedProcess{cmd: cmd, logPath: logPath, proc: proc})
	return proc, nil
}

func (r *fakeRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.started)
}

// process returns the fake process launched for an inbox filename.
func (r *fakeRunner) process(t *testing.T, name string) *fakeProcess {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, started := range r.started {
		for _, arg := range started.cmd.Args {
			if filepath.Base(arg) == name {
				return started.proc
			}
		}
	}
	t.Fatalf("no decoder started for %s", name)
	return nil
}

type recordingObserver struct {
	results  []Result
	onFinish func(Result)
}

func (o *recordingObserver) JobFinished(result Result) {
	o.results = append(o.results, result)
	if o.onFinish != nil {
		o.onFinish(result)
	}
}

type harness struct {
	cfg      *config.Config
	clock    *fakeClock
	runner   *fakeRunner
	observer *recordingObserver
	logs     *bytes.Buffer
	sched    *Scheduler
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	base := []testsupport.ConfigOption{testsupport.WithScheduler(10, 60)}
	cfg := testsupport.NewConfig(t, append(base, opts...)...)

	h := &harness{
		cfg:      cfg,
		clock:    newFakeClock(),
		runner:   &fakeRunner{},
		observer: &recordingObserver{},
		logs:     &bytes.Buffer{},
	}
	logger := slog.New(slog.NewJSONHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h.sched = New(cfg, h.runner, logger, WithClock(h.clock), WithObserver(h.observer))
	return h
}

// arrive writes name into the inbox and records activity at the current time.
func (h *harness) arrive(t *testing.T, name string) {
	t.Helper()
	testsupport.WriteFile(t, filepath.Join(h.cfg.Paths.InboxDir, name), 64)
	h.sched.Record(name, h.clock.Now())
}

func (h *harness) inbox(name string) string { return filepath.Join(h.cfg.Paths.InboxDir, name) }
func (h *harness) work(name string) string { return filepath.Join(h.cfg.Paths.WorkDir, name) }
func (h *harness) archive(name string) string { return filepath.Join(h.cfg.Paths.ArchiveDir, name) }
func (h *harness) errored(name string) string { return filepath.Join(h.cfg.Paths.ErrorDir, name) }

func requireDisjoint(t *testing.T, status Status) {
	t.Helper()
	running := make(map[string]struct{}, len(status.Running))
	for _, job := range status.Running {
		running[job.Name] = struct{}{}
	}
	for _, entry := range status.Queued {
		if _, ok := running[entry.Name]; ok {
			t.Fatalf("%s is both queued and running", entry.Name)
		}
	}
}

func removeDir(path string) error { return os.RemoveAll(path) }

func makeDir(path string) error { return os.MkdirAll(path, 0o755) }
