// Package process implements the process holder: the live binding of
// a spawned child to its log file and its assigned ports, with an
// idempotent destroy so that supervisor cleanup, a per-task shutdown,
// and a process-wide stop can all call it without racing each other
// into a double-kill panic.
package process

import (
	"io"
	"os/exec"
	"sync"
)

// Holder owns a spawned child process, its combined stdout+stderr
// pipe, its log file path, and the ports reserved for it. It is
// attached to exactly one work item for that item's lifetime.
type Holder struct {
	Cmd         *exec.Cmd
	LogFile     string
	Port        int
	ChatPort    int // 0 if no separate ingestion endpoint was reserved
	HasChatPort bool

	stdout io.ReadCloser
	stdin  io.WriteCloser

	destroyOnce sync.Once
}

// NewHolder wraps cmd, which must already have its Stdout/Stderr
// merged into stdoutPipe (see the runner package's spawnLocked for how
// that pipe is constructed) and Stdin attached as stdinPipe.
func NewHolder(cmd *exec.Cmd, stdoutPipe io.ReadCloser, stdinPipe io.WriteCloser, logFile string, portNum int) *Holder {
	return &Holder{
		Cmd:     cmd,
		LogFile: logFile,
		Port:    portNum,
		stdout:  stdoutPipe,
		stdin:   stdinPipe,
	}
}

// SetChatPort records the second, "chat handler" port reserved when
// separateIngestionEndpoint is enabled.
func (h *Holder) SetChatPort(p int) {
	h.ChatPort = p
	h.HasChatPort = true
}

// Stdout returns the child's merged stdout+stderr stream.
func (h *Holder) Stdout() io.ReadCloser { return h.stdout }

// Pid returns the child's process id, or 0 if it was never started.
func (h *Holder) Pid() int {
	if h.Cmd == nil || h.Cmd.Process == nil {
		return 0
	}
	return h.Cmd.Process.Pid
}

// CloseStdin closes the child's stdin, the polite "please wrap up"
// signal used by stop()'s graceful-shutdown phase. It returns the
// underlying close error so the caller can fall back to Destroy.
func (h *Holder) CloseStdin() error {
	if h.stdin == nil {
		return nil
	}
	return h.stdin.Close()
}

// Destroy kills the child process and closes its streams. It is safe
// to call multiple times and from multiple goroutines: supervisor
// Cleanup, a shutdown(id) call, and a process-wide stop() may all
// reach it for the same holder, and only the first call has any
// effect.
func (h *Holder) Destroy() {
	h.destroyOnce.Do(func() {
		if h.stdin != nil {
			_ = h.stdin.Close()
		}
		if h.stdout != nil {
			_ = h.stdout.Close()
		}
		if h.Cmd != nil && h.Cmd.Process != nil {
			_ = h.Cmd.Process.Kill()
		}
	})
}
