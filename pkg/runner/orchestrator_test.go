package runner

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ingestrun/forkrunner/pkg/logutil"
	"github.com/ingestrun/forkrunner/pkg/types"
)

// writeFakeChild writes a POSIX-sh script standing in for a forked
// JVM peon. It ignores every flag the argv builder emits and looks
// only at its final positional argument (statusJSONPath), so it stays
// correct regardless of how many -D properties precede it.
func writeFakeChild(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "fake-child.sh")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

const successBody = `
last=""
for arg in "$@"; do last="$arg"; done
cat > "$last" <<'EOF'
{"id":"x","status":"SUCCESS"}
EOF
`

const sleepThenSucceedBody = `
sleep 0.3
last=""
for arg in "$@"; do last="$arg"; done
cat > "$last" <<'EOF'
{"id":"x","status":"SUCCESS"}
EOF
`

const sleepLongBody = `
sleep 5
last=""
for arg in "$@"; do last="$arg"; done
cat > "$last" <<'EOF'
{"id":"x","status":"SUCCESS"}
EOF
`

const failBody = `
exit 1
`

func newTestOrchestrator(t *testing.T, javaCommand string, capacity int, shutdownTimeout time.Duration) *Orchestrator {
	t.Helper()
	baseDir := t.TempDir()
	return New(Deps{
		TaskConfig: &types.FileTaskConfig{
			BaseDir:          baseDir,
			RestoreOnRestart: true,
			ShutdownTimeout:  shutdownTimeout,
		},
		RunnerConfig: &types.StaticRunnerConfig{
			Command:  javaCommand,
			Opts:     "",
			CP:       "test.jar",
			Port:     20100,
			Prefixes: []string{"druid."},
		},
		WorkerConfig: types.StaticWorkerConfig(capacity),
		Properties:   types.Properties{},
		LogPusher:    noopLogPusher{},
		LogUtils:     logutil.FileStreamer{},
		Node:         types.StaticNode("localhost"),
	})
}

type noopLogPusher struct{}

func (noopLogPusher) PushTaskLog(ctx context.Context, taskID, logFile string) error { return nil }

func TestRunSingleTaskSucceeds(t *testing.T) {
	dir := t.TempDir()
	child := writeFakeChild(t, dir, successBody)
	o := newTestOrchestrator(t, child, 1, 2*time.Second)

	task := &types.Task{ID: "T1", DataSource: "ds"}
	completion := o.Run(context.Background(), task)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	status, err := completion.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, status.Success())
	assert.Empty(t, o.GetKnownTasks())
}

func TestRunIsIdempotentByTaskID(t *testing.T) {
	dir := t.TempDir()
	child := writeFakeChild(t, dir, sleepThenSucceedBody)
	o := newTestOrchestrator(t, child, 1, 2*time.Second)

	task := &types.Task{ID: "T1", DataSource: "ds"}
	c1 := o.Run(context.Background(), task)
	c2 := o.Run(context.Background(), &types.Task{ID: "T1", DataSource: "other"})

	assert.Same(t, c1, c2)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	status, err := c1.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, status.Success())
}

func TestCapacityOneQueuesSecondTask(t *testing.T) {
	dir := t.TempDir()
	child := writeFakeChild(t, dir, sleepThenSucceedBody)
	o := newTestOrchestrator(t, child, 1, 2*time.Second)

	c1 := o.Run(context.Background(), &types.Task{ID: "T1", DataSource: "ds"})
	c2 := o.Run(context.Background(), &types.Task{ID: "T2", DataSource: "ds"})

	assert.Eventually(t, func() bool {
		running := o.GetRunningTasks()
		pending := o.GetPendingTasks()
		return len(running) == 1 && running[0].ID == "T1" &&
			len(pending) == 1 && pending[0].ID == "T2"
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s1, err := c1.Wait(ctx)
	require.NoError(t, err)
	s2, err := c2.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, s1.Success())
	assert.True(t, s2.Success())
}

func TestShutdownDestroysRunningTask(t *testing.T) {
	dir := t.TempDir()
	child := writeFakeChild(t, dir, sleepLongBody)
	o := newTestOrchestrator(t, child, 1, 2*time.Second)

	completion := o.Run(context.Background(), &types.Task{ID: "T1", DataSource: "ds"})

	require.Eventually(t, func() bool {
		return len(o.GetRunningTasks()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	o.Shutdown("T1")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	status, err := completion.Wait(ctx)
	require.NoError(t, err)
	assert.False(t, status.Success())
	assert.Empty(t, o.GetKnownTasks())
}

func TestShutdownUnknownTaskIsNoop(t *testing.T) {
	o := newTestOrchestrator(t, "/bin/true", 1, time.Second)
	assert.NotPanics(t, func() {
		o.Shutdown("does-not-exist")
	})
}

func TestFailingChildResolvesToFailure(t *testing.T) {
	dir := t.TempDir()
	child := writeFakeChild(t, dir, failBody)
	o := newTestOrchestrator(t, child, 1, 2*time.Second)

	completion := o.Run(context.Background(), &types.Task{ID: "T1", DataSource: "ds"})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	status, err := completion.Wait(ctx)
	require.NoError(t, err)
	assert.False(t, status.Success())
}

func TestStopWithZeroTimeoutReturnsPromptly(t *testing.T) {
	dir := t.TempDir()
	child := writeFakeChild(t, dir, sleepLongBody)
	o := newTestOrchestrator(t, child, 1, 0)

	o.Run(context.Background(), &types.Task{ID: "T1", DataSource: "ds"})
	require.Eventually(t, func() bool {
		return len(o.GetRunningTasks()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	start := time.Now()
	o.Stop()
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	// stop() never force-kills a survivor.
	assert.Len(t, o.GetRunningTasks(), 1)
}

func TestStopReportsSurvivorsAfterTimeoutElapses(t *testing.T) {
	dir := t.TempDir()
	child := writeFakeChild(t, dir, sleepLongBody)
	o := newTestOrchestrator(t, child, 1, 200*time.Millisecond)

	o.Run(context.Background(), &types.Task{ID: "T1", DataSource: "ds"})
	require.Eventually(t, func() bool {
		return len(o.GetRunningTasks()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	start := time.Now()
	o.Stop()
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	assert.Len(t, o.GetRunningTasks(), 1)
}

func TestRunAfterStopIsRejected(t *testing.T) {
	o := newTestOrchestrator(t, "/bin/true", 1, 200*time.Millisecond)
	o.Stop()

	completion := o.Run(context.Background(), &types.Task{ID: "T1", DataSource: "ds"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	status, err := completion.Wait(ctx)
	require.NoError(t, err)
	assert.False(t, status.Success())
}

func TestRestoreReSubmitsRestorableTasks(t *testing.T) {
	dir := t.TempDir()
	child := writeFakeChild(t, dir, successBody)

	baseDir := t.TempDir()
	taskID := "T-restore"
	taskDir := filepath.Join(baseDir, taskID)
	require.NoError(t, os.MkdirAll(taskDir, 0o755))
	require.NoError(t, types.WriteTask(filepath.Join(taskDir, "task.json"), &types.Task{
		ID: taskID, DataSource: "ds", CanRestoreFlag: true,
	}))
	require.NoError(t, os.WriteFile(
		filepath.Join(baseDir, "restore.json"),
		[]byte(`{"runningTasks":["T-restore"]}`),
		0o644,
	))

	o := New(Deps{
		TaskConfig: &types.FileTaskConfig{
			BaseDir:          baseDir,
			RestoreOnRestart: true,
			ShutdownTimeout:  2 * time.Second,
		},
		RunnerConfig: &types.StaticRunnerConfig{Command: child, CP: "test.jar", Port: 20200},
		WorkerConfig: types.StaticWorkerConfig(1),
		Properties:   types.Properties{},
		LogPusher:    noopLogPusher{},
		Node:         types.StaticNode("localhost"),
	})

	completions := o.Restore(context.Background())
	require.Len(t, completions, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	status, err := completions[0].Wait(ctx)
	require.NoError(t, err)
	assert.True(t, status.Success())
}

func TestRestoreSkipsNonRestorableTask(t *testing.T) {
	baseDir := t.TempDir()
	taskID := "T-norestore"
	taskDir := filepath.Join(baseDir, taskID)
	require.NoError(t, os.MkdirAll(taskDir, 0o755))
	require.NoError(t, types.WriteTask(filepath.Join(taskDir, "task.json"), &types.Task{
		ID: taskID, DataSource: "ds", CanRestoreFlag: false,
	}))
	require.NoError(t, os.WriteFile(
		filepath.Join(baseDir, "restore.json"),
		[]byte(`{"runningTasks":["T-norestore"]}`),
		0o644,
	))

	o := New(Deps{
		TaskConfig: &types.FileTaskConfig{
			BaseDir:          baseDir,
			RestoreOnRestart: true,
			ShutdownTimeout:  time.Second,
		},
		RunnerConfig: &types.StaticRunnerConfig{Command: "/bin/true", CP: "test.jar", Port: 20300},
		WorkerConfig: types.StaticWorkerConfig(1),
		Properties:   types.Properties{},
		LogPusher:    noopLogPusher{},
		Node:         types.StaticNode("localhost"),
	})

	assert.Empty(t, o.Restore(context.Background()))
}

func TestStreamTaskLogWhileRunning(t *testing.T) {
	dir := t.TempDir()
	child := writeFakeChild(t, dir, "echo hello-from-child\n"+sleepLongBody)
	o := newTestOrchestrator(t, child, 1, 2*time.Second)

	o.Run(context.Background(), &types.Task{ID: "T1", DataSource: "ds"})
	require.Eventually(t, func() bool {
		return len(o.GetRunningTasks()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	var contents string
	require.Eventually(t, func() bool {
		r, err := o.StreamTaskLog(context.Background(), "T1", 0)
		if err != nil || r == nil {
			return false
		}
		defer r.Close()
		b, err := io.ReadAll(r)
		if err != nil {
			return false
		}
		contents = string(b)
		return contents != ""
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, contents, "hello-from-child")

	o.Shutdown("T1")
}

func TestStreamTaskLogUnknownTaskReturnsNil(t *testing.T) {
	o := newTestOrchestrator(t, "/bin/true", 1, time.Second)
	r, err := o.StreamTaskLog(context.Background(), "nope", 0)
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestGetScalingStatsAlwaysNil(t *testing.T) {
	o := newTestOrchestrator(t, "/bin/true", 1, time.Second)
	assert.Nil(t, o.GetScalingStats())
}
