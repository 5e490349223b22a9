package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"dayrun/internal/day"
)

// DayLog is the dedicated log file for one processed day. Structured records
// and raw payload output share the file.
type DayLog struct {
	Path    string
	handler slog.Handler

	mu   sync.Mutex
	file *os.File
}

// DayLogPath returns <dir>/<yyyy>/<yyyy>-<ddd>-<runid8>.log.
func DayLogPath(dir string, d day.Day, runID string) string {
	name := d.String()
	if short := ShortRunID(runID); short != "" {
		name += "-" + short
	}
	return filepath.Join(dir, fmt.Sprintf("%04d", d.Year), name+".log")
}

// OpenDayLog creates (or appends to) the day log file and builds a handler
// writing to it with the provided level and format.
func OpenDayLog(dir string, d day.Day, runID, level, format string) (*DayLog, error) {
	if dir == "" {
		return nil, fmt.Errorf("day log directory not configured")
	}
	path := DayLogPath(dir, d, runID)
	if err := ensureLogDir(path); err != nil {
		return nil, fmt.Errorf("ensure day log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open day log %s: %w", path, err)
	}
	log := &DayLog{Path: path, file: file}
	handler, err := NewHandler(Options{Level: level, Format: format, Writers: []io.Writer{log}})
	if err != nil {
		file.Close()
		return nil, err
	}
	log.handler = handler
	return log, nil
}

// Handler returns the slog handler writing to the day log.
func (l *DayLog) Handler() slog.Handler {
	if l == nil || l.handler == nil {
		return NoopHandler{}
	}
	return l.handler
}

// Write appends raw bytes (payload or hook output) to the day log.
func (l *DayLog) Write(p []byte) (int, error) {
	if l == nil {
		return len(p), nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return 0, os.ErrClosed
	}
	return l.file.Write(p)
}

// Close closes the underlying file. It is safe to call more than once.
func (l *DayLog) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
