// Package runner spawns and supervises external commands: install and
// remove actions, container builds, and cleanup invocations. Output is
// captured incrementally into an offset-addressable log buffer, and
// cancellation terminates the whole process group.
package runner

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// ErrTimeout indicates the process was killed because it exceeded the
// spec's timeout.
var ErrTimeout = errors.New("process timed out")

// tailLines is how many trailing log lines are attached to failures.
const tailLines = 20

// DefaultGrace is the delay between SIGTERM and SIGKILL during
// cancellation. Long enough for docker/apt to unwind, short enough that a
// stop request feels immediate.
const DefaultGrace = 8 * time.Second

// ExitError reports a non-zero exit, carrying the trailing log lines so
// callers can surface enough context to re-run the command by hand.
type ExitError struct {
	Code    int
	LogTail []string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("process exited with code %d", e.Code)
}

// Spec describes one external command to run.
type Spec struct {
	Command string
	Args    []string
	Env     []string // appended to the parent environment
	Dir     string
	Timeout time.Duration // 0 means no timeout
	Grace   time.Duration // 0 means DefaultGrace
}

// Result is the terminal outcome of a supervised process.
type Result struct {
	ExitCode  int
	Cancelled bool // cancellation was requested before exit (stop or timeout)
	Err       error // nil on clean exit; ErrTimeout or *ExitError otherwise
}

// Handle supervises one running process.
type Handle struct {
	log  *LogBuffer
	cmd  *exec.Cmd
	done chan struct{}

	mu        sync.Mutex
	cancelled bool
	timedOut  bool
	finished  bool
	result    Result

	grace time.Duration
}

// Start spawns the command described by spec. The returned handle's log
// buffer fills as the process writes; Wait blocks until exit.
func Start(spec Spec) (*Handle, error) {
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	// New process group so Cancel can signal the command and every
	// descendant it spawns (docker compose, apt, sub-shells).
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	grace := spec.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}

	h := &Handle{
		log:   NewLogBuffer(),
		cmd:   cmd,
		done:  make(chan struct{}),
		grace: grace,
	}

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return nil, fmt.Errorf("failed to start %s: %w", spec.Command, err)
	}

	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			h.log.Append(scanner.Text())
		}
	}()

	var timeoutTimer *time.Timer
	if spec.Timeout > 0 {
		timeoutTimer = time.AfterFunc(spec.Timeout, func() {
			h.mu.Lock()
			h.timedOut = true
			h.mu.Unlock()
			h.Cancel()
		})
	}

	go func() {
		waitErr := cmd.Wait()
		pw.Close()
		<-scanDone
		if timeoutTimer != nil {
			timeoutTimer.Stop()
		}
		h.finish(waitErr, spec.Timeout)
	}()

	return h, nil
}

// finish computes the terminal result and releases waiters.
func (h *Handle) finish(waitErr error, timeout time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	res := Result{Cancelled: h.cancelled}

	switch {
	case waitErr == nil:
		res.ExitCode = 0
		// The process exited cleanly on its own. A timeout or stop that
		// fired in the same instant never reached it and must not mark
		// the result cancelled.
		res.Cancelled = false
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
		}
		switch {
		case h.timedOut:
			res.Err = fmt.Errorf("%w after %s", ErrTimeout, timeout)
		case h.cancelled:
			// Killed on request; the exit code is reported but not an error.
		default:
			res.Err = &ExitError{Code: res.ExitCode, LogTail: h.log.Tail(tailLines)}
		}
	}

	h.result = res
	h.finished = true
	close(h.done)
}

// Log returns the handle's log buffer. Safe for concurrent readers while
// the process runs.
func (h *Handle) Log() *LogBuffer {
	return h.log
}

// Done is closed once the process has exited and the result is available.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the process exits and returns its result.
func (h *Handle) Wait() Result {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

// Cancel requests termination: SIGTERM to the process group, then SIGKILL
// after the grace period if the process has not exited. Safe to call more
// than once; once the result is recorded Cancel changes nothing.
func (h *Handle) Cancel() {
	h.mu.Lock()
	if h.cancelled || h.finished {
		h.mu.Unlock()
		return
	}
	h.cancelled = true
	h.mu.Unlock()

	select {
	case <-h.done:
		return // already exited; nothing to signal
	default:
	}

	pid := h.cmd.Process.Pid
	// Negative pid signals the whole group.
	_ = syscall.Kill(-pid, syscall.SIGTERM)

	go func() {
		select {
		case <-h.done:
		case <-time.After(h.grace):
			_ = syscall.Kill(-pid, syscall.SIGKILL)
		}
	}()
}

// Exec runs a command to completion and returns its result together with
// all captured output lines. The error is non-nil only when the process
// could not be started.
func Exec(spec Spec) (Result, []string, error) {
	h, err := Start(spec)
	if err != nil {
		return Result{}, nil, err
	}
	res := h.Wait()
	return res, h.log.Snapshot(), nil
}
