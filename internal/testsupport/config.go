package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"inboxwatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config whose directories live under a unique temp
// directory. Stage directories are created; options are applied last.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths = config.Paths{
		InboxDir:   filepath.Join(base, "InBox"),
		WorkDir:    filepath.Join(base, "DoBox"),
		ResultsDir: filepath.Join(base, "OutBox"),
		ArchiveDir: filepath.Join(base, "DoneBox"),
		ErrorDir:   filepath.Join(base, "ErrorBox"),
		LogDir:     filepath.Join(base, "logs"),
		StateDir:   filepath.Join(base, "state"),
	}
	cfgVal.Decoder.Program = filepath.Join(base, "bin", "decode")
	cfgVal.Scheduler.TickInterval = 1
	cfgVal.Scheduler.StabilizationThreshold = 2

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithScheduler overrides tick interval and stabilization threshold (seconds).
func WithScheduler(tick, threshold int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scheduler.TickInterval = tick
		b.cfg.Scheduler.StabilizationThreshold = threshold
	}
}

// WithMaxConcurrentJobs caps concurrent decoder processes.
func WithMaxConcurrentJobs(limit int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scheduler.MaxConcurrentJobs = limit
	}
}

// WithRuntimeLimits sets stuck and kill thresholds (seconds).
func WithRuntimeLimits(stuckAfter, killAfter int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scheduler.StuckAfter = stuckAfter
		b.cfg.Scheduler.KillAfter = killAfter
	}
}

// WithCaptureOutput enables decoder output capture into log_dir/jobs.
func WithCaptureOutput() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Decoder.CaptureOutput = true
	}
}

// WithStubDecoder writes an executable shell script with the given body and
// points decoder.program at it.
func WithStubDecoder(body string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, "decode")
		if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
			b.t.Fatalf("write stub decoder: %v", err)
		}
		b.cfg.Decoder.Program = target
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "path-bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.InboxDir)
}
