// Package types holds the data model shared across the fork runner:
// the opaque Task and TaskStatus records, their JSON codec, and the
// small set of injected collaborator interfaces the runner core
// depends on (config, properties, log pusher, log streaming, node
// identity).
package types

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Task is the opaque unit of work the runner forks a child process for.
// It is serialized verbatim to <taskDir>/task.json and handed to the
// child as its first positional argument.
type Task struct {
	ID              string                 `json:"id"`
	DataSource      string                 `json:"dataSource"`
	ClasspathPrefix string                 `json:"classpathPrefix,omitempty"`
	NodeType        string                 `json:"nodeType,omitempty"`
	Context         map[string]interface{} `json:"context,omitempty"`
	CanRestoreFlag  bool                   `json:"canRestore"`
}

// CanRestore reports whether the task declares itself restorable across
// a supervisor crash/restart.
func (t *Task) CanRestore() bool {
	return t.CanRestoreFlag
}

// ContextString returns the string value of a context key, and whether
// it was present and actually a string.
func (t *Task) ContextString(key string) (string, bool) {
	if t.Context == nil {
		return "", false
	}
	v, ok := t.Context[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// LoadTask reads and decodes a Task from path.
func LoadTask(path string) (*Task, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task file: %w", err)
	}
	var t Task
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("decoding task file %s: %w", path, err)
	}
	return &t, nil
}

// WriteTask serializes t to path, creating the parent directory if
// needed. It does not check for an existing file; callers that only
// want to write when absent should stat first (as the runner's
// prepare step does).
func WriteTask(path string, t *Task) error {
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding task: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating task directory: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

// TaskStatus is the serializable record a child writes to status.json
// on success. The runner reads only its id and status fields; any
// other fields in status.json are not decoded. Failure(id) synthesizes
// one on every error path.
type TaskStatus struct {
	ID     string                 `json:"id"`
	Status string                 `json:"status"`
	Extra  map[string]interface{} `json:"-"`
}

// Failure synthesizes a TaskStatus representing a failed task, used on
// every non-success exit path in the supervisor.
func Failure(id string) *TaskStatus {
	return &TaskStatus{ID: id, Status: "FAILED"}
}

// Success reports whether this status represents a successful run.
func (s *TaskStatus) Success() bool {
	return s != nil && s.Status != "FAILED" && s.Status != ""
}

// LoadTaskStatus reads and decodes a TaskStatus from path.
func LoadTaskStatus(path string) (*TaskStatus, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading status file: %w", err)
	}
	var s TaskStatus
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decoding status file %s: %w", path, err)
	}
	return &s, nil
}
