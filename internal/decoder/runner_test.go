package decoder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

// useHelperProcess routes decoder launches back into this test binary.
func useHelperProcess(t *testing.T, mode string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		helperArgs := append([]string{"-test.run=TestHelperProcess", "--"}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], helperArgs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "DECODER_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	mode := os.Getenv("DECODER_HELPER_MODE")
	switch {
	case mode == "success":
		fmt.Println("decoded", strings.Join(os.Args[len(os.Args)-4:], " "))
		os.Exit(0)
	case strings.HasPrefix(mode, "exit:"):
		code, _ := strconv.Atoi(strings.TrimPrefix(mode, "exit:"))
		fmt.Fprintln(os.Stderr, "decode failed")
		os.Exit(code)
	case mode == "hang":
		time.Sleep(time.Minute)
		os.Exit(0)
	}
	os.Exit(3)
}

func waitForExit(t *testing.T, proc Process) State {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if state, done := proc.Poll(); done {
			return state
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("decoder did not exit in time")
	return State{}
}

func TestExecRunnerSuccessCapturesOutput(t *testing.T) {
	useHelperProcess(t, "success")
	logPath := filepath.Join(t.TempDir(), "jobs", "a.bin.log")

	cmd := Command{Program: "decode", Args: []string{"-f", "a.bin", "-o", "a.h5"}}
	proc, err := ExecRunner{}.Start(context.Background(), cmd, logPath)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if proc.PID() <= 0 {
		t.Fatalf("expected a pid, got %d", proc.PID())
	}

	state := waitForExit(t, proc)
	if !state.Success() {
		t.Fatalf("expected success, got %+v", state)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read job log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "# ") || !strings.Contains(out, "decode -f a.bin -o a.h5") {
		t.Errorf("expected command header in job log, got %q", out)
	}
	if !strings.Contains(out, "decoded -f a.bin -o a.h5") {
		t.Errorf("expected decoder stdout in job log, got %q", out)
	}
}

func TestExecRunnerReportsExitCode(t *testing.T) {
	useHelperProcess(t, "exit:7")

	proc, err := ExecRunner{}.Start(context.Background(), Command{Program: "decode"}, "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	state := waitForExit(t, proc)
	if state.Success() {
		t.Fatal("expected failure")
	}
	if state.ExitCode != 7 {
		t.Fatalf("expected exit code 7, got %d", state.ExitCode)
	}
	if state.Err != nil {
		t.Fatalf("exit status should not surface as a wait error: %v", state.Err)
	}
}

func TestExecRunnerPollIsNonBlocking(t *testing.T) {
	useHelperProcess(t, "hang")

	proc, err := ExecRunner{}.Start(context.Background(), Command{Program: "decode"}, "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, done := proc.Poll(); done {
		t.Fatal("hanging decoder reported as exited")
	}

	if err := proc.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	state := waitForExit(t, proc)
	if state.Success() {
		t.Fatal("killed decoder must not report success")
	}
	if err := proc.Kill(); err != nil {
		t.Fatalf("Kill after exit should be a no-op, got %v", err)
	}
}

func TestExecRunnerContextCancelTerminates(t *testing.T) {
	useHelperProcess(t, "hang")
	ctx, cancel := context.WithCancel(context.Background())

	proc, err := ExecRunner{TerminateGrace: time.Second}.Start(ctx, Command{Program: "decode"}, "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	if state := waitForExit(t, proc); state.Success() {
		t.Fatal("cancelled decoder must not report success")
	}
}

func TestExecRunnerMissingBinary(t *testing.T) {
	cmd := Command{Program: filepath.Join(t.TempDir(), "missing-decoder")}
	if _, err := (ExecRunner{}).Start(context.Background(), cmd, ""); err == nil {
		t.Fatal("expected start error for missing binary")
	}
}

func TestExecRunnerRequiresProgram(t *testing.T) {
	if _, err := (ExecRunner{}).Start(context.Background(), Command{}, ""); err == nil {
		t.Fatal("expected error for empty program")
	}
}
