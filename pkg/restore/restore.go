// Package restore implements the restore store: the durable list
// of task ids the runner believes are live, rewritten on every
// work-item table membership change except during process-wide
// shutdown.
package restore

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ingestrun/forkrunner/pkg/log"
	"github.com/ingestrun/forkrunner/pkg/metrics"
)

// record is the on-disk shape of restore.json.
type record struct {
	RunningTasks []string `json:"runningTasks"`
}

// Store persists the roster of live task ids to a single file.
type Store struct {
	path string
}

// NewStore creates a Store backed by <baseTaskDir>/restore.json.
func NewStore(baseTaskDir string) *Store {
	return &Store{path: filepath.Join(baseTaskDir, "restore.json")}
}

// Load reads the roster. A missing file yields an empty list without
// logging; any other read or decode error (truncated JSON, wrong shape)
// is logged and treated as an empty list — restore is best-effort, and
// a bad file must not fail startup.
func (s *Store) Load() []string {
	logger := log.WithComponent("restore")

	b, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", s.path).Msg("failed to read restore store")
		}
		return []string{}
	}

	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		logger.Warn().Err(err).Str("path", s.path).Msg("malformed restore store, treating as empty")
		return []string{}
	}
	if rec.RunningTasks == nil {
		return []string{}
	}
	return rec.RunningTasks
}

// Save overwrites the roster with ids. The parent directory is
// created if necessary. Write errors are logged and swallowed: the
// next successful save supersedes, and the caller's task outcome is
// unaffected either way.
func (s *Store) Save(ids []string) {
	logger := log.WithComponent("restore")

	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(record{RunningTasks: ids})
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode restore store")
		metrics.RestoreStoreWritesTotal.WithLabelValues("error").Inc()
		return
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		logger.Error().Err(err).Str("path", s.path).Msg("failed to create restore store directory")
		metrics.RestoreStoreWritesTotal.WithLabelValues("error").Inc()
		return
	}

	if err := os.WriteFile(s.path, b, 0o644); err != nil {
		logger.Error().Err(err).Str("path", s.path).Msg("failed to write restore store")
		metrics.RestoreStoreWritesTotal.WithLabelValues("error").Inc()
		return
	}
	metrics.RestoreStoreWritesTotal.WithLabelValues("ok").Inc()
}
