package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

const tailLimit = 64 * 1024

// ExecSpec describes one external tool invocation
type ExecSpec struct {
	Bin     string
	Args    []string
	Dir     string
	Timeout time.Duration
	// CaptureStdout keeps the whole stdout in ExecResult.Stdout, for tools
	// whose output is parsed
	CaptureStdout bool
}

// ExecResult is the outcome of a tool run. Only the tails of the output
// streams are kept, unless the full stdout was requested.
type ExecResult struct {
	ExitCode    int
	Duration    time.Duration
	Stdout      string
	StdoutTail  string
	StderrTail  string
	TimedOut    bool
	Interrupted bool
	Err         error
}

// OK reports whether the tool exited cleanly
func (r ExecResult) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Runner executes external tools
type Runner interface {
	Run(ctx context.Context, spec ExecSpec) ExecResult
}

// SubprocessRunner runs tools as child processes. When the context ends
// the whole process group is killed.
type SubprocessRunner struct{}

func NewSubprocessRunner() *SubprocessRunner {
	return &SubprocessRunner{}
}

type tailBuffer struct {
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = tailLimit
	}
	return &tailBuffer{buf: make([]byte, 0, max), max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) >= t.max {
		t.buf = append(t.buf[:0], p[len(p)-t.max:]...)
		return len(p), nil
	}
	overflow := len(t.buf) + len(p) - t.max
	if overflow > 0 {
		t.buf = append(t.buf[:0], t.buf[overflow:]...)
	}
	t.buf = append(t.buf, p...)
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}

func (r *SubprocessRunner) Run(ctx context.Context, spec ExecSpec) ExecResult {
	start := time.Now()
	if spec.Bin == "" {
		return ExecResult{ExitCode: 1, Duration: time.Since(start), Err: errors.New("missing binary")}
	}

	runCtx := ctx
	cancel := func() {}
	if spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, spec.Bin, spec.Args...)
	cmd.Dir = spec.Dir
	configureCommandForTermination(cmd)
	cmd.Cancel = func() error {
		terminateCommand(cmd)
		return nil
	}
	cmd.WaitDelay = 2 * time.Second

	stdoutTail := newTailBuffer(tailLimit)
	stderrTail := newTailBuffer(tailLimit)
	var stdout bytes.Buffer
	cmd.Stdout = stdoutTail
	if spec.CaptureStdout {
		cmd.Stdout = io.MultiWriter(&stdout, stdoutTail)
	}
	cmd.Stderr = stderrTail

	err := cmd.Run()
	result := ExecResult{
		Duration:   time.Since(start),
		Stdout:     stdout.String(),
		StdoutTail: stdoutTail.String(),
		StderrTail: stderrTail.String(),
		Err:        err,
	}
	if err == nil {
		return result
	}

	switch runCtx.Err() {
	case context.DeadlineExceeded:
		result.TimedOut = true
		result.ExitCode = 124
		return result
	case context.Canceled:
		result.Interrupted = true
		result.ExitCode = 130
		return result
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result
	}
	if errors.Is(err, exec.ErrNotFound) {
		result.ExitCode = 127
		return result
	}
	result.ExitCode = 1
	return result
}

// describe renders a failed run for logs
func describe(name string, res ExecResult) string {
	switch {
	case res.TimedOut:
		return name + " timed out"
	case res.Interrupted:
		return name + " interrupted"
	}
	tail := strings.TrimSpace(res.StderrTail)
	if len(tail) > 500 {
		tail = tail[len(tail)-500:]
	}
	return fmt.Sprintf("%s exited with code %d: %s", name, res.ExitCode, tail)
}
