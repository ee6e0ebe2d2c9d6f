package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ingestrun/forkrunner/pkg/log"
	"github.com/ingestrun/forkrunner/pkg/metrics"
	"github.com/ingestrun/forkrunner/pkg/process"
	"github.com/ingestrun/forkrunner/pkg/types"
)

// errCancelled marks a Preparing abort caused by a shutdown(id) call
// that landed before the child was spawned.
var errCancelled = errors.New("task shutdown before process was spawned")

// runSupervisorActivation drives one work item through Preparing,
// Running and Cleanup, and resolves its completion exactly once. It
// runs on its own goroutine for the lifetime of one worker-pool slot.
func (o *Orchestrator) runSupervisorActivation(ctx context.Context, wi *WorkItem) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SupervisorActivationDuration)

	logger := log.WithTaskID(wi.TaskID)
	taskDir := o.taskConfig.TaskDir(wi.TaskID)

	holder, attemptDir, err := o.prepare(ctx, wi, taskDir, logger)
	if err != nil {
		outcome := "failure"
		if errors.Is(err, errCancelled) {
			outcome = "cancelled"
			logger.Info().Msg("task shutdown before the child process was spawned")
		} else {
			logger.Error().Err(err).Msg("failed to prepare task for execution")
		}
		metrics.TaskOutcomesTotal.WithLabelValues(outcome).Inc()
		o.cleanup(wi, nil, taskDir, logger)
		wi.Completion.resolve(types.Failure(wi.TaskID))
		return
	}

	status, runErr := o.run(ctx, wi, holder, attemptDir, logger)
	if runErr != nil {
		logger.Error().Err(runErr).Msg("task process exited with an error")
		status = types.Failure(wi.TaskID)
		metrics.TaskOutcomesTotal.WithLabelValues("failure").Inc()
	} else if status.Success() {
		metrics.TaskOutcomesTotal.WithLabelValues("success").Inc()
	} else {
		metrics.TaskOutcomesTotal.WithLabelValues("failure").Inc()
	}

	o.cleanup(wi, holder, taskDir, logger)
	wi.Completion.resolve(status)
}

// prepare reserves ports, creates the attempt directory, writes
// task.json if absent, assembles argv and spawns the child. The table
// lock is held from the post-shutdown-check point through the process
// spawn and holder installation, so that a concurrent Shutdown can
// never race a spawn that is already past its abort check: a work item
// observed with shutdown set never gets a child afterward.
func (o *Orchestrator) prepare(ctx context.Context, wi *WorkItem, taskDir string, logger zerolog.Logger) (*process.Holder, string, error) {
	prepTimer := metrics.NewTimer()
	defer prepTimer.ObserveDuration(metrics.PreparingDuration)

	attemptUUID := uuid.NewString()
	attemptDir := filepath.Join(taskDir, attemptUUID)

	var (
		primaryPort int
		chatPort    int
		hasChat     bool
	)
	if o.runnerConfig.SeparateIngestionEndpoint() {
		primaryPort, chatPort = o.ports.FindTwoConsecutiveUnusedPorts()
		hasChat = true
	} else {
		primaryPort = o.ports.FindUnusedPort()
	}
	metrics.PortsInUse.Set(float64(o.ports.InUse()))

	releasePorts := func() {
		o.ports.MarkPortUnused(primaryPort)
		if hasChat {
			o.ports.MarkPortUnused(chatPort)
		}
		metrics.PortsInUse.Set(float64(o.ports.InUse()))
	}

	o.mu.Lock()
	current, ok := o.items[wi.TaskID]
	if !ok || current.shutdown {
		o.mu.Unlock()
		releasePorts()
		return nil, attemptDir, errCancelled
	}
	if current.holder != nil {
		o.mu.Unlock()
		releasePorts()
		return nil, attemptDir, errors.New("process holder already attached, refusing to spawn a second child")
	}

	if err := os.MkdirAll(attemptDir, 0o755); err != nil {
		o.mu.Unlock()
		releasePorts()
		return nil, attemptDir, err
	}

	taskJSONPath := filepath.Join(taskDir, "task.json")
	statusJSONPath := filepath.Join(attemptDir, "status.json")
	if _, err := os.Stat(taskJSONPath); os.IsNotExist(err) {
		if err := types.WriteTask(taskJSONPath, wi.Task); err != nil {
			o.mu.Unlock()
			releasePorts()
			return nil, attemptDir, err
		}
	}

	argv := buildArgv(buildArgvParams{
		task:           wi.Task,
		runnerConfig:   o.runnerConfig,
		properties:     o.properties,
		nodeHost:       o.node.Host(),
		childPort:      primaryPort,
		chatPort:       chatPort,
		hasChatPort:    hasChat,
		taskJSONPath:   taskJSONPath,
		statusJSONPath: statusJSONPath,
	})

	logFile := filepath.Join(taskDir, "log")
	holder, err := o.spawnLocked(argv, attemptDir, logFile, primaryPort, chatPort, hasChat)
	if err != nil {
		o.mu.Unlock()
		releasePorts()
		return nil, attemptDir, err
	}

	current.holder = holder
	o.mu.Unlock()

	logger.Info().
		Str("attempt_dir", attemptDir).
		Int("port", primaryPort).
		Int("pid", holder.Pid()).
		Msg("spawned task process")

	return holder, attemptDir, nil
}

// spawnLocked builds the exec.Cmd, wires its merged stdout+stderr
// stream and stdin, and starts it. Callers must already hold the table
// lock, per prepare's nested-locking discipline.
func (o *Orchestrator) spawnLocked(argv []string, dir, logFile string, port, chatPort int, hasChat bool) (*process.Holder, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	r, w, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return nil, err
	}
	cmd.Stdout = w
	cmd.Stderr = w

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = r.Close()
		_ = w.Close()
		return nil, err
	}
	// The parent's copy of the write end must close so the reader sees
	// EOF once every child-held copy of the fd is gone.
	_ = w.Close()

	holder := process.NewHolder(cmd, r, stdin, logFile, port)
	if hasChat {
		holder.SetChatPort(chatPort)
	}
	return holder, nil
}

// run implements the Running state: merge the child's output into its
// log file until EOF, then reap the process and load its status.
func (o *Orchestrator) run(ctx context.Context, wi *WorkItem, holder *process.Holder, attemptDir string, logger zerolog.Logger) (*types.TaskStatus, error) {
	logFile, err := os.OpenFile(holder.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	defer logFile.Close()

	if _, err := io.Copy(logFile, holder.Stdout()); err != nil {
		logger.Warn().Err(err).Msg("error copying task output")
	}

	waitErr := holder.Cmd.Wait()

	if o.logPusher != nil {
		if err := o.logPusher.PushTaskLog(ctx, wi.TaskID, holder.LogFile); err != nil {
			logger.Warn().Err(err).Msg("failed to push task log")
		}
	}

	if waitErr != nil {
		return types.Failure(wi.TaskID), nil
	}

	statusPath := filepath.Join(attemptDir, "status.json")
	status, err := types.LoadTaskStatus(statusPath)
	if err != nil {
		logger.Warn().Err(err).Msg("child exited cleanly but wrote no usable status, treating as failure")
		return types.Failure(wi.TaskID), nil
	}
	return status, nil
}

// cleanup implements the Cleanup state: unconditional table removal,
// holder destruction and port release, then (unless the orchestrator
// is stopping) restore-store rewrite and task directory removal.
//
// Both reserved ports are returned here, including the primary one.
// taskDir, not just the attempt subdirectory, is removed: task.json
// and the log live directly under taskDir, with only status.json
// nested under the per-attempt uuid directory, and a completed task
// leaves nothing behind.
func (o *Orchestrator) cleanup(wi *WorkItem, holder *process.Holder, taskDir string, logger zerolog.Logger) {
	o.mu.Lock()
	delete(o.items, wi.TaskID)
	stopping := o.stopping
	ids := o.knownIDsLocked()
	o.mu.Unlock()

	if holder != nil {
		holder.Destroy()
		o.ports.MarkPortUnused(holder.Port)
		if holder.HasChatPort {
			o.ports.MarkPortUnused(holder.ChatPort)
		}
		metrics.PortsInUse.Set(float64(o.ports.InUse()))
	}

	o.updateKnownTaskMetrics()

	if stopping {
		return
	}

	o.restoreStore.Save(ids)

	if taskDir != "" {
		if err := os.RemoveAll(taskDir); err != nil {
			logger.Warn().Err(err).Str("task_dir", taskDir).Msg("failed to remove task directory")
		}
	}
}
