// Package logpusher provides TaskLogPusher implementations: a no-op
// for local development, and a local-archive pusher that copies a
// completed task's log to a durable directory, standing in for the
// kind of object-store upload a production deployment would do.
package logpusher

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Noop discards every push; useful when no durable archive is
// configured.
type Noop struct{}

func (Noop) PushTaskLog(ctx context.Context, taskID, logFile string) error { return nil }

// LocalArchive copies each task's log file into Dir/<taskID>.log.
type LocalArchive struct {
	Dir string
}

func (a LocalArchive) PushTaskLog(ctx context.Context, taskID, logFile string) error {
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return fmt.Errorf("creating log archive directory: %w", err)
	}

	src, err := os.Open(logFile)
	if err != nil {
		return fmt.Errorf("opening task log %s: %w", logFile, err)
	}
	defer src.Close()

	dstPath := filepath.Join(a.Dir, taskID+".log")
	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("creating archived log %s: %w", dstPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copying task log to archive: %w", err)
	}
	return nil
}
