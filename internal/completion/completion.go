// Package completion decides whether an upstream detector run finished
// successfully. "Not finished" is the normal state for much of a batch, so
// checkers answer with a plain bool and never return errors.
package completion

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"path/filepath"

	"github.com/banshee-data/lcmerge/internal/fsutil"
	"github.com/banshee-data/lcmerge/internal/monitoring"
)

const (
	// DefaultSentinelName is the log the extraction pipeline writes into each
	// run directory.
	DefaultSentinelName = "nuproducts.log"
	// DefaultMarker is appended to the log on a zero exit status.
	DefaultMarker = "nuproducts done"
	// DefaultMaxBytes bounds how much of the log is inspected.
	DefaultMaxBytes int64 = 1 << 20
)

// Checker reports whether the run stored at location is usable.
type Checker interface {
	IsComplete(ctx context.Context, location string) bool
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, location string) bool

// IsComplete calls f.
func (f CheckerFunc) IsComplete(ctx context.Context, location string) bool {
	return f(ctx, location)
}

// LogSentinel treats a run as complete when its sentinel log contains a line
// beginning with Marker. Only the last MaxBytes of the log are read, in a
// single bounded read.
type LogSentinel struct {
	FS       fsutil.FileSystem
	Name     string
	Marker   string
	MaxBytes int64
}

// NewLogSentinel returns a LogSentinel with the pipeline defaults.
func NewLogSentinel(fsys fsutil.FileSystem) *LogSentinel {
	return &LogSentinel{
		FS:       fsys,
		Name:     DefaultSentinelName,
		Marker:   DefaultMarker,
		MaxBytes: DefaultMaxBytes,
	}
}

// IsComplete implements Checker. Missing or unreadable logs and logs without
// the marker all report false.
func (s *LogSentinel) IsComplete(ctx context.Context, location string) bool {
	if ctx.Err() != nil {
		return false
	}
	data, err := s.readTail(filepath.Join(location, s.name()))
	if err != nil {
		monitoring.Debugf("completion: %s: %v", location, err)
		return false
	}
	return hasMarkerLine(data, []byte(s.marker()))
}

func (s *LogSentinel) readTail(path string) ([]byte, error) {
	f, err := s.FS.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	limit := s.maxBytes()
	if seeker, ok := f.(io.Seeker); ok {
		if info, err := f.Stat(); err == nil && info.Size() > limit {
			if _, err := seeker.Seek(info.Size()-limit, io.SeekStart); err != nil {
				return nil, err
			}
		}
	}
	return io.ReadAll(io.LimitReader(f, limit))
}

// hasMarkerLine reports whether any line of data starts with marker.
func hasMarkerLine(data, marker []byte) bool {
	if len(marker) == 0 {
		return false
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	for sc.Scan() {
		if bytes.HasPrefix(sc.Bytes(), marker) {
			return true
		}
	}
	return false
}

func (s *LogSentinel) name() string {
	if s.Name == "" {
		return DefaultSentinelName
	}
	return s.Name
}

func (s *LogSentinel) marker() string {
	if s.Marker == "" {
		return DefaultMarker
	}
	return s.Marker
}

func (s *LogSentinel) maxBytes() int64 {
	if s.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return s.MaxBytes
}
