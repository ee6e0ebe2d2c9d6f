// Package runner implements the forking task runner's core: the
// per-task work item table, the prepare/run/cleanup supervisor state
// machine driven once per task, and the orchestrator that exposes
// run/shutdown/stop/restore and the table's read views.
package runner

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ingestrun/forkrunner/pkg/log"
	"github.com/ingestrun/forkrunner/pkg/metrics"
	"github.com/ingestrun/forkrunner/pkg/port"
	"github.com/ingestrun/forkrunner/pkg/process"
	"github.com/ingestrun/forkrunner/pkg/restore"
	"github.com/ingestrun/forkrunner/pkg/types"
)

// Orchestrator is the forking task runner. One Orchestrator owns one
// work-item table, one bounded worker pool and one port allocator; it
// is the only component that mutates any of them.
type Orchestrator struct {
	taskConfig   types.TaskConfig
	runnerConfig types.ForkingTaskRunnerConfig
	properties   types.Properties
	logPusher    types.TaskLogPusher
	logUtils     types.LogUtils
	node         types.Node

	ports *port.Pool
	sem   *semaphore.Weighted

	mu           sync.Mutex
	items        map[string]*WorkItem
	stopping     bool
	restoreStore *restore.Store

	wg sync.WaitGroup
}

// Deps bundles the orchestrator's injected collaborators.
type Deps struct {
	TaskConfig   types.TaskConfig
	RunnerConfig types.ForkingTaskRunnerConfig
	WorkerConfig types.WorkerConfig
	Properties   types.Properties
	LogPusher    types.TaskLogPusher
	LogUtils     types.LogUtils
	Node         types.Node
}

// New constructs an Orchestrator. The worker pool capacity and the
// port pool's starting point are read once, at construction, from the
// injected configs.
func New(d Deps) *Orchestrator {
	capacity := d.WorkerConfig.Capacity()
	metrics.WorkerSlotsCapacity.Set(float64(capacity))

	return &Orchestrator{
		taskConfig:   d.TaskConfig,
		runnerConfig: d.RunnerConfig,
		properties:   d.Properties,
		logPusher:    d.LogPusher,
		logUtils:     d.LogUtils,
		node:         d.Node,
		ports:        port.NewPool(d.RunnerConfig.StartPort()),
		sem:          semaphore.NewWeighted(int64(capacity)),
		items:        make(map[string]*WorkItem),
		restoreStore: restore.NewStore(d.TaskConfig.BaseTaskDir()),
	}
}

// Start is part of the runner surface for lifecycle symmetry with
// Stop. All state is lazy, so there is nothing to do here.
func (o *Orchestrator) Start() {}

// Run submits task for execution and returns a completion for it.
// Resubmitting a task id already known to the table returns the
// existing completion rather than starting a second activation: run()
// is idempotent by task id.
func (o *Orchestrator) Run(ctx context.Context, task *types.Task) *Completion {
	o.mu.Lock()
	if existing, ok := o.items[task.ID]; ok {
		o.mu.Unlock()
		return existing.Completion
	}
	if o.stopping {
		o.mu.Unlock()
		c := newCompletion()
		c.resolve(types.Failure(task.ID))
		taskLogger := log.WithTaskID(task.ID)
		taskLogger.Warn().Msg("rejected submission: orchestrator is stopping")
		return c
	}

	wi := &WorkItem{TaskID: task.ID, Task: task, Completion: newCompletion()}
	o.items[task.ID] = wi
	ids := o.knownIDsLocked()
	o.mu.Unlock()

	o.restoreStore.Save(ids)
	o.updateKnownTaskMetrics()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.activate(ctx, wi)
	}()

	return wi.Completion
}

// activate waits for a worker-pool slot, then runs the supervisor.
func (o *Orchestrator) activate(ctx context.Context, wi *WorkItem) {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		wi.Completion.resolve(types.Failure(wi.TaskID))
		o.mu.Lock()
		delete(o.items, wi.TaskID)
		ids := o.knownIDsLocked()
		o.mu.Unlock()
		o.restoreStore.Save(ids)
		return
	}
	metrics.WorkerSlotsInUse.Inc()
	defer func() {
		o.sem.Release(1)
		metrics.WorkerSlotsInUse.Dec()
	}()

	o.runSupervisorActivation(ctx, wi)
}

// Shutdown marks a single task for cancellation. If its process has
// already been spawned, it is destroyed immediately; if Preparing has
// not yet reached the spawn point, the flag causes it to abort instead
// of spawning a child at all. Shutdown of an unknown task id is logged
// and otherwise a no-op.
func (o *Orchestrator) Shutdown(id string) {
	o.mu.Lock()
	wi, ok := o.items[id]
	if !ok {
		o.mu.Unlock()
		taskLogger := log.WithTaskID(id)
		taskLogger.Info().Msg("shutdown requested for unknown task id")
		return
	}
	wi.shutdown = true
	holder := wi.holder
	o.mu.Unlock()

	if holder != nil {
		holder.Destroy()
	}
}

// Stop begins process-wide shutdown: further submissions are refused,
// every running child is sent the polite stdin-close signal, and Stop
// waits up to the configured graceful shutdown timeout for all
// activations to finish draining. A timeout of zero returns promptly
// without waiting at all. Stop never force-kills a survivor; any task
// still running when the timeout elapses is left running and reported.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.stopping = true
	holders := make([]holderAndID, 0, len(o.items))
	for id, wi := range o.items {
		if wi.holder != nil {
			holders = append(holders, holderAndID{id: id, holder: wi.holder})
		}
	}
	o.mu.Unlock()

	for _, h := range holders {
		if err := h.holder.CloseStdin(); err != nil {
			taskLogger := log.WithTaskID(h.id)
			taskLogger.Warn().Err(err).Msg("failed to close task stdin, destroying instead")
			h.holder.Destroy()
		}
	}

	timeout := o.taskConfig.GracefulShutdownTimeout()
	if timeout <= 0 {
		log.Logger.Info().Msg("graceful shutdown timeout is zero, returning without waiting")
		return
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Logger.Info().Msg("all task activations drained before the shutdown timeout")
	case <-time.After(timeout):
		survivors := o.GetRunningTasks()
		survivorIDs := make([]string, 0, len(survivors))
		for _, t := range survivors {
			survivorIDs = append(survivorIDs, t.ID)
		}
		sort.Strings(survivorIDs)
		metrics.ShutdownSurvivorsTotal.Set(float64(len(survivors)))
		log.Logger.Warn().
			Int("survivor_count", len(survivors)).
			Strs("task_ids", survivorIDs).
			Msg("graceful shutdown timeout elapsed with tasks still running")
	}
}

type holderAndID struct {
	id     string
	holder *process.Holder
}

// Restore re-submits every task id the restore store believes was
// live, loading each one's task.json from its task directory. A task
// that can't be reloaded, whose id doesn't match its file, or that
// declines restoration is skipped and logged; restore is entirely
// best-effort.
func (o *Orchestrator) Restore(ctx context.Context) []*Completion {
	if !o.taskConfig.RestoreTasksOnRestart() {
		return nil
	}

	logger := log.WithComponent("restore")
	ids := o.restoreStore.Load()

	var completions []*Completion
	for _, id := range ids {
		taskJSONPath := o.taskConfig.TaskDir(id) + "/task.json"
		task, err := types.LoadTask(taskJSONPath)
		if err != nil {
			logger.Warn().Err(err).Str("task_id", id).Msg("failed to reload task for restore, skipping")
			continue
		}
		if task.ID != id {
			logger.Warn().Str("task_id", id).Str("loaded_id", task.ID).Msg("restore roster id mismatch, skipping")
			continue
		}
		if !task.CanRestore() {
			logger.Info().Str("task_id", id).Msg("task declines restoration, skipping")
			continue
		}
		completions = append(completions, o.Run(ctx, task))
	}
	return completions
}

// StreamTaskLog streams a running or completed-but-still-tracked
// task's log file starting at offset. It returns nil if the task is
// unknown or has no process holder attached yet.
func (o *Orchestrator) StreamTaskLog(ctx context.Context, id string, offset int64) (io.ReadCloser, error) {
	o.mu.Lock()
	wi, ok := o.items[id]
	var logFile string
	if ok && wi.holder != nil {
		logFile = wi.holder.LogFile
	}
	o.mu.Unlock()

	if logFile == "" {
		return nil, nil
	}
	return o.logUtils.StreamFile(ctx, logFile, offset)
}

// GetRunningTasks returns the tasks with a process holder attached.
func (o *Orchestrator) GetRunningTasks() []*types.Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*types.Task
	for _, wi := range o.items {
		if wi.holder != nil {
			out = append(out, wi.Task)
		}
	}
	return out
}

// GetPendingTasks returns the tasks still waiting for a worker-pool
// slot, i.e. known to the table but with no process holder yet.
func (o *Orchestrator) GetPendingTasks() []*types.Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*types.Task
	for _, wi := range o.items {
		if wi.holder == nil {
			out = append(out, wi.Task)
		}
	}
	return out
}

// GetKnownTasks returns every task currently in the table, running or
// pending.
func (o *Orchestrator) GetKnownTasks() []*types.Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*types.Task, 0, len(o.items))
	for _, wi := range o.items {
		out = append(out, wi.Task)
	}
	return out
}

// GetScalingStats always returns nil: this runner forks locally and
// never reports autoscaling signals.
func (o *Orchestrator) GetScalingStats() interface{} {
	return nil
}

// knownIDsLocked returns a sorted snapshot of every task id currently
// in the table. Callers must hold o.mu.
func (o *Orchestrator) knownIDsLocked() []string {
	ids := make([]string, 0, len(o.items))
	for id := range o.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// updateKnownTaskMetrics refreshes the running/pending gauges. It
// takes the table lock itself via the accessors, so callers must not
// hold it.
func (o *Orchestrator) updateKnownTaskMetrics() {
	running := len(o.GetRunningTasks())
	pending := len(o.GetPendingTasks())
	metrics.KnownTasksTotal.WithLabelValues("running").Set(float64(running))
	metrics.KnownTasksTotal.WithLabelValues("pending").Set(float64(pending))
}
