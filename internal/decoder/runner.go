package decoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

var commandContext = exec.CommandContext

// State is the terminal status of a decoder process.
type State struct {
	// ExitCode is the process exit status, or -1 when it was killed by a signal.
	ExitCode int
	// Err is set when the process could not be waited on cleanly.
	Err error
}

// Success reports whether the decoder finished with exit status 0.
func (s State) Success() bool {
	return s.Err == nil && s.ExitCode == 0
}

// Process is a started decoder.
type Process interface {
	// Poll reports the terminal state without blocking. The boolean is false
	// while the process is still running.
	Poll() (State, bool)
	// Kill terminates the process. Poll later reports it as exited.
	Kill() error
	PID() int
}

// Runner starts decoder processes.
type Runner interface {
	// Start launches cmd and returns immediately. When logPath is non-empty
	// stdout and stderr are appended to it; otherwise they are discarded.
	// Cancelling ctx terminates the process.
	Start(ctx context.Context, cmd Command, logPath string) (Process, error)
}

// ExecRunner runs decoders as child processes via os/exec.
type ExecRunner struct {
	// TerminateGrace is how long a cancelled decoder gets after SIGTERM before SIGKILL.
	TerminateGrace time.Duration
}

// Start implements Runner.
func (r ExecRunner) Start(ctx context.Context, command Command, logPath string) (Process, error) {
	if command.Program == "" {
		return nil, errors.New("decoder program required")
	}

	cmd := commandContext(ctx, command.Program, command.Args...) //nolint:gosec
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.TerminateGrace
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 5 * time.Second
	}

	var logFile *os.File
	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			return nil, fmt.Errorf("create job log directory: %w", err)
		}
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open job log: %w", err)
		}
		fmt.Fprintf(f, "# %s %s\n", time.Now().UTC().Format(time.RFC3339), command.String())
		cmd.Stdout = f
		cmd.Stderr = f
		logFile = f
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, fmt.Errorf("start decoder: %w", err)
	}

	proc := &execProcess{cmd: cmd, done: make(chan struct{})}
	go proc.wait(logFile)
	return proc, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu    sync.Mutex
	state State
}

func (p *execProcess) wait(logFile *os.File) {
	err := p.cmd.Wait()
	if logFile != nil {
		_ = logFile.Close()
	}

	state := State{ExitCode: -1}
	if p.cmd.ProcessState != nil {
		state.ExitCode = p.cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		state.Err = err
	}

	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
	close(p.done)
}

func (p *execProcess) Poll() (State, bool) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.state, true
	default:
		return State{}, false
	}
}

func (p *execProcess) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill decoder pid %d: %w", p.cmd.Process.Pid, err)
	}
	return nil
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

var _ Runner = ExecRunner{}
