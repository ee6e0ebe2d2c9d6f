package types

import (
	"context"
	"io"
	"path/filepath"
	"time"
)

// TaskConfig is the injected collaborator describing where task state
// lives on disk and how restarts behave.
type TaskConfig interface {
	BaseTaskDir() string
	TaskDir(id string) string
	RestoreTasksOnRestart() bool
	GracefulShutdownTimeout() time.Duration
}

// ForkingTaskRunnerConfig is the injected collaborator describing how
// to invoke the child process.
type ForkingTaskRunnerConfig interface {
	JavaCommand() string
	JavaOpts() string
	Classpath() string
	StartPort() int
	AllowedPrefixes() []string
	SeparateIngestionEndpoint() bool
}

// WorkerConfig is the injected collaborator bounding concurrency.
type WorkerConfig interface {
	Capacity() int
}

// Properties is the process-wide string configuration map.
type Properties map[string]string

// TaskLogPusher uploads a completed task's log file to durable
// storage. It is an external collaborator; the runner core only calls
// it, never implements the actual upload.
type TaskLogPusher interface {
	PushTaskLog(ctx context.Context, taskID string, logFile string) error
}

// LogUtils streams a file's contents starting at offset. A negative
// offset means "last |offset| bytes", mirroring a tail -c  -N request.
type LogUtils interface {
	StreamFile(ctx context.Context, path string, offset int64) (io.ReadCloser, error)
}

// Node describes the identity of the local node the runner is
// operating on.
type Node interface {
	Host() string
}

// FileTaskConfig is a simple, directly constructible TaskConfig used
// by the default wiring and by tests that don't need to fake the
// filesystem.
type FileTaskConfig struct {
	BaseDir          string
	RestoreOnRestart bool
	ShutdownTimeout  time.Duration
}

func (c *FileTaskConfig) BaseTaskDir() string { return c.BaseDir }

func (c *FileTaskConfig) TaskDir(id string) string {
	return filepath.Join(c.BaseDir, id)
}

func (c *FileTaskConfig) RestoreTasksOnRestart() bool { return c.RestoreOnRestart }

func (c *FileTaskConfig) GracefulShutdownTimeout() time.Duration { return c.ShutdownTimeout }

// StaticRunnerConfig is a directly constructible ForkingTaskRunnerConfig.
type StaticRunnerConfig struct {
	Command          string
	Opts             string
	CP               string
	Port             int
	Prefixes         []string
	SeparateEndpoint bool
}

func (c *StaticRunnerConfig) JavaCommand() string            { return c.Command }
func (c *StaticRunnerConfig) JavaOpts() string               { return c.Opts }
func (c *StaticRunnerConfig) Classpath() string              { return c.CP }
func (c *StaticRunnerConfig) StartPort() int                 { return c.Port }
func (c *StaticRunnerConfig) AllowedPrefixes() []string      { return c.Prefixes }
func (c *StaticRunnerConfig) SeparateIngestionEndpoint() bool { return c.SeparateEndpoint }

// StaticWorkerConfig is a directly constructible WorkerConfig.
type StaticWorkerConfig int

func (c StaticWorkerConfig) Capacity() int { return int(c) }

// StaticNode is a directly constructible Node.
type StaticNode string

func (n StaticNode) Host() string { return string(n) }
