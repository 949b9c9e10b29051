package daemonrun

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"inboxwatch/internal/daemon"
	"inboxwatch/internal/testsupport"
)

func TestEnsureCurrentLogPointerReplacesLink(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "inboxwatch-1.log")
	second := filepath.Join(dir, "inboxwatch-2.log")
	for _, path := range []string{first, second} {
		if err := os.WriteFile(path, []byte(filepath.Base(path)), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "inboxwatch.log"))
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if string(data) != "inboxwatch-2.log" {
		t.Fatalf("pointer resolves to %q", data)
	}
}

func TestPIDFileRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	pid, err := ReadPID(cfg)
	if err != nil || pid != 0 {
		t.Fatalf("expected no pid, got %d err=%v", pid, err)
	}
	if err := writePIDFile(filepath.Join(cfg.Paths.StateDir, "inboxwatch.pid")); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	pid, err = ReadPID(cfg)
	if err != nil {
		t.Fatalf("read pid: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("pid = %d, want %d", pid, os.Getpid())
	}
}

func TestSecondRunLeavesRunningDaemonStateAlone(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	held := flock.New(cfg.LockPath())
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("hold lock: ok=%v err=%v", ok, err)
	}
	t.Cleanup(func() { _ = held.Unlock() })

	if err := os.WriteFile(pidFilePath(cfg), []byte("4242\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	pointer := filepath.Join(cfg.Paths.LogDir, "inboxwatch.log")
	if err := os.Symlink("inboxwatch-running.log", pointer); err != nil {
		t.Fatal(err)
	}

	err = Run(context.Background(), cfg, Options{})
	if !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	pid, err := ReadPID(cfg)
	if err != nil || pid != 4242 {
		t.Fatalf("pid file changed: pid=%d err=%v", pid, err)
	}
	target, err := os.Readlink(pointer)
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if target != "inboxwatch-running.log" {
		t.Fatalf("log pointer moved to %q", target)
	}
}

func TestRunWritesAndRemovesPIDFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, Options{LogLevel: "error"}) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		pid, err := ReadPID(cfg)
		if err == nil && pid == os.Getpid() {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("pid file not written: pid=%d err=%v", pid, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	target, err := os.Readlink(filepath.Join(cfg.Paths.LogDir, "inboxwatch.log"))
	if err != nil || !strings.HasPrefix(filepath.Base(target), "inboxwatch-") {
		t.Fatalf("expected log pointer to this run, got %q err=%v", target, err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if pid, err := ReadPID(cfg); err != nil || pid != 0 {
		t.Fatalf("expected pid file removed, got pid=%d err=%v", pid, err)
	}
}

func TestDependencySnapshotReportsDecoder(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubDecoder("exit 0"))
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logDependencySnapshot(logger, cfg)

	for _, want := range []string{
		`"event_type":"dependency_snapshot"`,
		`"decoder_available":true`,
		`"decoder_path":"` + cfg.Decoder.Program + `"`,
	} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("snapshot missing %s: %s", want, buf.String())
		}
	}
}
