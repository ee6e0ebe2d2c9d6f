// Package logutil provides the default LogUtils implementation: a
// local-disk file streamer that understands the "last N bytes" tail
// semantics a negative offset requests.
package logutil

import (
	"context"
	"fmt"
	"io"
	"os"
)

// FileStreamer streams task log files directly off the local disk.
type FileStreamer struct{}

// StreamFile opens path and returns a reader starting at offset. A
// non-negative offset seeks forward from the start of the file; a
// negative offset seeks backward from the end, clamped to the start
// of the file if the file is shorter than |offset|.
func (FileStreamer) StreamFile(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", path, err)
	}

	var seekErr error
	if offset >= 0 {
		_, seekErr = f.Seek(offset, io.SeekStart)
	} else {
		info, statErr := f.Stat()
		if statErr != nil {
			_ = f.Close()
			return nil, fmt.Errorf("stating log file %s: %w", path, statErr)
		}
		start := info.Size() + offset
		if start < 0 {
			start = 0
		}
		_, seekErr = f.Seek(start, io.SeekStart)
	}
	if seekErr != nil {
		_ = f.Close()
		return nil, fmt.Errorf("seeking log file %s: %w", path, seekErr)
	}
	return f, nil
}
