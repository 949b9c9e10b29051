package daemon_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"inboxwatch/internal/daemon"
	"inboxwatch/internal/history"
	"inboxwatch/internal/testsupport"
)

const passthroughDecoder = `out=""
while [ $# -gt 0 ]; do
	if [ "$1" = "-o" ]; then out="$2"; fi
	shift
done
echo decoded > "$out"`

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestDaemonProcessesInboxFile(t *testing.T) {
	requireShell(t)
	cfg := testsupport.NewConfig(t,
		testsupport.WithScheduler(1, 1),
		testsupport.WithStubDecoder(passthroughDecoder),
	)
	cfg.History.Enabled = true

	d, err := daemon.New(cfg, slog.New(discardHandler), daemon.WithRunID("run-1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	readyCtx, readyCancel := context.WithTimeout(ctx, 5*time.Second)
	defer readyCancel()
	if _, err := d.Scheduler(readyCtx); err != nil {
		t.Fatalf("daemon did not start: %v", err)
	}

	testsupport.WriteFile(t, filepath.Join(cfg.Paths.InboxDir, "scan.bin"), 256)
	archived := filepath.Join(cfg.Paths.ArchiveDir, "scan.bin")
	waitFor(t, 15*time.Second, func() bool {
		_, err := os.Stat(archived)
		return err == nil
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}

	testsupport.RequireFile(t, filepath.Join(cfg.Paths.ResultsDir, "scan.h5"))
	testsupport.RequireMissing(t, filepath.Join(cfg.Paths.InboxDir, "scan.bin"))
	testsupport.RequireMissing(t, filepath.Join(cfg.Paths.WorkDir, "scan.bin"))

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer store.Close()
	entries, err := store.List(context.Background(), history.Filter{})
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one history entry, got %d", len(entries))
	}
	if entries[0].FileName != "scan.bin" || entries[0].Outcome != "archived" || entries[0].RunID != "run-1" {
		t.Fatalf("unexpected history entry: %+v", entries[0])
	}
}

func TestDaemonScansExistingInboxFiles(t *testing.T) {
	requireShell(t)
	cfg := testsupport.NewConfig(t,
		testsupport.WithScheduler(1, 1),
		testsupport.WithStubDecoder(passthroughDecoder),
	)
	cfg.Watch.ScanExisting = true
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.InboxDir, "early.bin"), 64)

	d, err := daemon.New(cfg, slog.New(discardHandler))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	archived := filepath.Join(cfg.Paths.ArchiveDir, "early.bin")
	waitFor(t, 15*time.Second, func() bool {
		_, err := os.Stat(archived)
		return err == nil
	})
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestDaemonRefusesSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubDecoder("exit 0"))

	held := flock.New(cfg.LockPath())
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("take lock: ok=%v err=%v", ok, err)
	}
	defer held.Unlock()

	running, err := daemon.IsRunning(cfg)
	if err != nil || !running {
		t.Fatalf("IsRunning = %v, %v; want true", running, err)
	}

	started := false
	d, err := daemon.New(cfg, slog.New(discardHandler),
		daemon.WithStarted(func() error { started = true; return nil }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Run(ctx); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if started {
		t.Fatal("start hook ran without the lock")
	}
}

func TestDaemonStartHookErrorAbortsRun(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubDecoder("exit 0"))
	hookErr := errors.New("pid file unwritable")
	d, err := daemon.New(cfg, slog.New(discardHandler),
		daemon.WithStarted(func() error { return hookErr }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Run(ctx); !errors.Is(err, hookErr) {
		t.Fatalf("expected hook error, got %v", err)
	}
	if running, err := daemon.IsRunning(cfg); err != nil || running {
		t.Fatalf("lock should be released after an aborted start: running=%v err=%v", running, err)
	}
}

func TestIsRunningWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	running, err := daemon.IsRunning(cfg)
	if err != nil {
		t.Fatalf("IsRunning: %v", err)
	}
	if running {
		t.Fatal("expected no running daemon")
	}
}

func TestDaemonFailsWhenInboxIsNotADirectory(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubDecoder("exit 0"))
	if err := os.Remove(cfg.Paths.InboxDir); err != nil {
		t.Fatalf("remove inbox: %v", err)
	}
	testsupport.WriteFile(t, cfg.Paths.InboxDir, 4)

	d, err := daemon.New(cfg, slog.New(discardHandler))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Run(ctx); err == nil {
		t.Fatal("expected startup failure")
	}
}

func TestInventoryListsStageDirectories(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.InboxDir, "a.bin"), 8)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.WorkDir, "b.bin"), 8)
	if err := os.Remove(cfg.Paths.ErrorDir); err != nil {
		t.Fatalf("remove error dir: %v", err)
	}

	listings, err := daemon.Inventory(cfg)
	if err != nil {
		t.Fatalf("Inventory: %v", err)
	}
	if len(listings) != 5 {
		t.Fatalf("expected 5 stages, got %d", len(listings))
	}
	byStage := map[string]daemon.StageListing{}
	for _, l := range listings {
		byStage[l.Stage] = l
	}
	if got := byStage["inbox"].Files; len(got) != 1 || got[0].Name() != "a.bin" {
		t.Fatalf("unexpected inbox listing: %+v", got)
	}
	if got := byStage["work"].Files; len(got) != 1 || got[0].Name() != "b.bin" {
		t.Fatalf("unexpected work listing: %+v", got)
	}
	if !byStage["error"].Missing {
		t.Fatal("expected error stage to be reported missing")
	}
	if len(byStage["archive"].Files) != 0 {
		t.Fatal("expected empty archive")
	}
}
