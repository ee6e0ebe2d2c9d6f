package runner

import (
	"context"
	"sync"

	"github.com/ingestrun/forkrunner/pkg/process"
	"github.com/ingestrun/forkrunner/pkg/types"
)

// WorkItem is the runner's per-task bookkeeping record. Every field
// but TaskID/Task is mutated only while the Orchestrator's table lock
// is held; WorkItem itself carries no lock of its own, since the table
// is the single authoritative index and its lock is the only
// discipline that matters.
type WorkItem struct {
	TaskID     string
	Task       *types.Task
	Completion *Completion

	shutdown bool
	holder   *process.Holder
}

// IsRunning reports whether a process holder is currently attached.
// Callers must hold the orchestrator's table lock.
func (w *WorkItem) IsRunning() bool {
	return w.holder != nil
}

// Completion is a one-shot future over a task's TaskStatus, resolved
// exactly once by the supervisor activation that owns the work item.
type Completion struct {
	done   chan struct{}
	once   sync.Once
	result *types.TaskStatus
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// resolve satisfies the completion. Only the first call has any
// effect; later calls are no-ops, since a work item's completion must
// be resolved exactly once.
func (c *Completion) resolve(status *types.TaskStatus) {
	c.once.Do(func() {
		c.result = status
		close(c.done)
	})
}

// Wait blocks until the completion is resolved or ctx is done.
func (c *Completion) Wait(ctx context.Context) (*types.TaskStatus, error) {
	select {
	case <-c.done:
		return c.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done returns a channel closed once the completion is resolved, for
// callers that want to select on it alongside other events.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}
