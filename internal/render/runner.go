package render

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"
)

// ErrToolTimeout marks a tool invocation that hit its wall-clock timeout.
var ErrToolTimeout = errors.New("tool timed out")

// ErrToolSpawn marks a tool that could not be started at all.
var ErrToolSpawn = errors.New("tool spawn failed")

// ToolResult carries the captured output of one tool invocation.
type ToolResult struct {
	Stdout   []byte
	Stderr   []byte
	TimedOut bool
}

// ToolRunner invokes an external conversion tool with an argument list (no
// shell interpolation), captured output and a hard wall-clock timeout.
// Tests substitute a recorder; the pipeline never touches os/exec directly.
type ToolRunner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) (ToolResult, error)
}

// execRunner is the production ToolRunner. On timeout it sends SIGTERM and,
// if the process has not exited within the grace period, SIGKILL.
type execRunner struct {
	grace time.Duration
}

// NewExecRunner returns the os/exec backed runner with a 1s kill grace.
func NewExecRunner() ToolRunner {
	return &execRunner{grace: time.Second}
}

func (r *execRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (ToolResult, error) {
	cmd := exec.Command(name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return ToolResult{}, errors.Join(ErrToolSpawn, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return ToolResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, err

	case <-timer.C:
		r.terminate(cmd, done)
		return ToolResult{
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
			TimedOut: true,
		}, ErrToolTimeout

	case <-ctx.Done():
		r.terminate(cmd, done)
		return ToolResult{
			Stdout: stdout.Bytes(),
			Stderr: stderr.Bytes(),
		}, ctx.Err()
	}
}

// terminate asks the process to exit and escalates to SIGKILL after the
// grace period.
func (r *execRunner) terminate(cmd *exec.Cmd, done <-chan error) {
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-done:
	case <-time.After(r.grace):
		_ = cmd.Process.Kill()
		<-done
	}
}
