// Package daemonrun assembles the runtime around a foreground daemon: signal
// handling, per-run log files, the PID file, and log retention.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"inboxwatch/internal/config"
	"inboxwatch/internal/daemon"
	"inboxwatch/internal/deps"
	"inboxwatch/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// retentionSweepInterval is how often old logs are pruned while running.
const retentionSweepInterval = 6 * time.Hour

// Run starts the inboxwatch daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := uuid.NewString()
	stamp := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("inboxwatch-%s.log", stamp))
	eventsPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("inboxwatch-%s.events", stamp))

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	events, closeEvents, err := logging.NewJSONFileHandler(eventsPath, level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to initialize event log: %v\n", err)
	} else {
		defer closeEvents()
		logger = logging.TeeLogger(logger, events)
	}
	logger = logger.With(logging.String(logging.FieldRunID, runID))

	logDependencySnapshot(logger, cfg)

	retention := logging.RetentionFromDays(cfg.Logging.RetentionDays, logPath, eventsPath)
	pruneLogs := func() {
		retention.Prune(logger,
			logging.LogSet{Name: "run", Dir: cfg.Paths.LogDir, Pattern: "inboxwatch-*.log"},
			logging.LogSet{Name: "events", Dir: cfg.Paths.LogDir, Pattern: "inboxwatch-*.events"},
			logging.LogSet{Name: "jobs", Dir: cfg.JobLogDir(), Pattern: "*.log"},
		)
	}

	// Everything below touches state shared with a running daemon, so it
	// waits until the lock is ours.
	pidPath := pidFilePath(cfg)
	ownsPID := false
	onStarted := func() error {
		if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
			fmt.Fprintf(os.Stderr, "warn: unable to update inboxwatch.log link: %v\n", err)
		}
		pruneLogs()
		if err := writePIDFile(pidPath); err != nil {
			return fmt.Errorf("write pid file: %w", err)
		}
		ownsPID = true
		return nil
	}
	defer func() {
		if ownsPID {
			_ = os.Remove(pidPath)
		}
	}()

	d, err := daemon.New(cfg, logger,
		daemon.WithRunID(runID),
		daemon.WithStarted(onStarted),
		daemon.WithMaintenance(retentionSweepInterval, pruneLogs),
	)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Run(signalCtx); err != nil {
		return err
	}
	logger.Info("inboxwatch daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "inboxwatch.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func pidFilePath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.StateDir, "inboxwatch.pid")
}

// ReadPID returns the PID recorded by a running daemon, or 0 when no PID
// file exists.
func ReadPID(cfg *config.Config) (int, error) {
	data, err := os.ReadFile(pidFilePath(cfg))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("capture_output", cfg.Decoder.CaptureOutput),
		logging.Bool("history_enabled", cfg.History.Enabled),
	}
	for _, status := range deps.CheckBinaries(deps.Requirements(cfg.Decoder)) {
		key := strings.ToLower(status.Name)
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_program", status.Command),
			logging.String(key+"_path", status.Path),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
