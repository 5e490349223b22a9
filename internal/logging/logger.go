package logging

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"dayrun/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level       string
	Format      string
	OutputPaths []string
	// Writers are appended to the writers opened from OutputPaths.
	Writers     []io.Writer
	Development bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	handler, err := NewHandler(opts)
	if err != nil {
		return nil, err
	}
	return slog.New(handler), nil
}

// NewHandler builds the console or JSON handler described by opts.
func NewHandler(opts Options) (slog.Handler, error) {
	level := parseLevel(opts.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)

	paths := opts.OutputPaths
	if len(paths) == 0 && len(opts.Writers) == 0 {
		paths = []string{"stdout"}
	}
	writer, err := openWriters(paths, opts.Writers)
	if err != nil {
		return nil, err
	}

	addSource := opts.Development || level <= slog.LevelDebug

	switch normalizeFormat(opts.Format) {
	case "json":
		return newJSONHandler(writer, levelVar, addSource), nil
	case "console":
		return newPrettyHandler(writer, levelVar, addSource), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
}

// Settings holds the level and format parsed from the logsettings string.
type Settings struct {
	Level  string
	Format string
}

// ParseSettings interprets the operator-supplied logsettings value. It accepts
// a bare level ("debug") or comma separated key=value pairs
// ("level=debug,format=json"). Unknown keys are rejected.
func ParseSettings(raw string) (Settings, error) {
	var settings Settings
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return settings, nil
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			settings.Level = strings.ToLower(part)
			continue
		}
		value = strings.ToLower(strings.TrimSpace(value))
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "level":
			settings.Level = value
		case "format":
			settings.Format = value
		default:
			return Settings{}, fmt.Errorf("logsettings: unknown key %q", key)
		}
	}
	return settings, nil
}

// RunLog is the log file written for one orchestrator run. Records are held
// in memory until Activate opens the file and moves the dayrun.log pointer,
// so an invocation that never gets the run lock leaves the log directory
// untouched.
type RunLog struct {
	Path    string
	pointer string

	mu      sync.Mutex
	file    *os.File
	pending bytes.Buffer
	closed  bool
}

// Write implements io.Writer.
func (r *RunLog) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.file != nil:
		return r.file.Write(p)
	case r.closed:
		return len(p), nil
	default:
		return r.pending.Write(p)
	}
}

// Activate creates the run log file, flushes buffered records into it and
// points dayrun.log at it. Repeated calls are no-ops.
func (r *RunLog) Activate() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil || r.closed {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.Path), 0o755); err != nil {
		return fmt.Errorf("ensure log directory: %w", err)
	}
	file, err := os.OpenFile(r.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return fmt.Errorf("open run log %s: %w", r.Path, err)
	}
	if _, err := r.pending.WriteTo(file); err != nil {
		_ = file.Close()
		return fmt.Errorf("write run log %s: %w", r.Path, err)
	}
	r.file = file
	updatePointer(r.pointer, r.Path)
	return nil
}

// Active reports whether the run log file has been created.
func (r *RunLog) Active() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file != nil
}

// Close closes the run log file. Records still buffered are discarded.
func (r *RunLog) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.pending.Reset()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// NewFromConfig creates the process logger: stdout plus, when a log directory
// is configured, a per-run file that the dayrun.log pointer refers to once
// the caller activates it. The logsettings value, when present, overrides
// the configured level and format.
func NewFromConfig(cfg *config.Config, runID string) (*slog.Logger, *RunLog, error) {
	if cfg == nil {
		logger, err := New(Options{Level: "info", Format: "console"})
		return logger, nil, err
	}

	level := cfg.Logging.Level
	format := cfg.Logging.Format
	settings, err := ParseSettings(cfg.Logging.Settings)
	if err != nil {
		return nil, nil, err
	}
	if settings.Level != "" {
		level = settings.Level
	}
	if settings.Format != "" {
		format = settings.Format
	}

	opts := Options{Level: level, Format: format, Writers: []io.Writer{os.Stdout}}
	var runLog *RunLog
	if dir := strings.TrimSpace(cfg.Paths.LogDir); dir != "" {
		runLog = &RunLog{
			Path:    filepath.Join(dir, runLogName(time.Now(), runID)),
			pointer: filepath.Join(dir, "dayrun.log"),
		}
		opts.Writers = append(opts.Writers, runLog)
	}

	handler, err := NewHandler(opts)
	if err != nil {
		_ = runLog.Close()
		return nil, nil, err
	}
	if runID != "" {
		handler = newRunIDHandler(handler, runID)
	}
	return slog.New(handler), runLog, nil
}

func runLogName(now time.Time, runID string) string {
	name := "dayrun-" + now.UTC().Format("20060102T150405")
	if short := ShortRunID(runID); short != "" {
		name += "-" + short
	}
	return name + ".log"
}

// ShortRunID returns the first eight characters of a run identifier.
func ShortRunID(runID string) string {
	runID = strings.TrimSpace(runID)
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}

// updatePointer replaces link with a symlink to target. Failures are ignored;
// the pointer only helps operators find the latest run.
func updatePointer(link, target string) {
	_ = os.Remove(link)
	_ = os.Symlink(filepath.Base(target), link)
}

func normalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		return "console"
	}
	return format
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openWriters(paths []string, extra []io.Writer) (io.Writer, error) {
	seen := map[string]struct{}{}
	var writers []io.Writer

	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}

		switch trimmed {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := ensureLogDir(trimmed); err != nil {
				return nil, err
			}
			file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", trimmed, err)
			}
			writers = append(writers, file)
		}
	}
	for _, w := range extra {
		if w != nil {
			writers = append(writers, w)
		}
	}

	switch len(writers) {
	case 0:
		return io.Discard, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
