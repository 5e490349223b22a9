package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dayrun/internal/config"
	"dayrun/internal/day"
	"dayrun/internal/logging"
	"dayrun/internal/services"
)

func TestNewFromConfigWritesRunLogAndPointer(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, runLog, err := logging.NewFromConfig(&cfg, "0123456789abcdef")
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	t.Cleanup(func() { _ = runLog.Close() })

	logger.Info("before lock")
	if entries, err := os.ReadDir(cfg.Paths.LogDir); err != nil || len(entries) != 0 {
		t.Fatalf("log dir touched before activation: %v %v", entries, err)
	}
	if runLog.Active() {
		t.Fatal("run log active before Activate")
	}
	if err := runLog.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	logger.Info("run started")
	if err := runLog.Close(); err != nil {
		t.Fatalf("close run log: %v", err)
	}

	if !strings.HasSuffix(runLog.Path, "-01234567.log") {
		t.Fatalf("unexpected run log name: %q", runLog.Path)
	}
	content, err := os.ReadFile(runLog.Path)
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	if !strings.Contains(string(content), "before lock") || !strings.Contains(string(content), "run started") {
		t.Fatalf("expected message in run log, got %q", content)
	}
	target, err := os.Readlink(filepath.Join(cfg.Paths.LogDir, "dayrun.log"))
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if target != filepath.Base(runLog.Path) {
		t.Fatalf("pointer targets %q, want %q", target, filepath.Base(runLog.Path))
	}
}

func TestNewFromConfigHonoursLogSettings(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Settings = "level=debug,format=json"

	logger, runLog, err := logging.NewFromConfig(&cfg, "run-1")
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	if err := runLog.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	logger.Debug("debug visible")
	_ = runLog.Close()

	content, err := os.ReadFile(runLog.Path)
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", content, err)
	}
	if entry["msg"] != "debug visible" || entry["level"] != "debug" || entry["run_id"] != "run-1" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestRunLogDiscardedWithoutActivation(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "logs")
	pointer := filepath.Join(cfg.Paths.LogDir, "dayrun.log")

	logger, runLog, err := logging.NewFromConfig(&cfg, "run-2")
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("lock contended")
	if err := runLog.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := runLog.Activate(); err != nil {
		t.Fatalf("Activate after Close: %v", err)
	}
	if _, err := os.Stat(cfg.Paths.LogDir); !os.IsNotExist(err) {
		t.Fatalf("log dir should not exist, stat err = %v", err)
	}
	if _, err := os.Lstat(pointer); !os.IsNotExist(err) {
		t.Fatalf("pointer should not exist, lstat err = %v", err)
	}
}

func TestParseSettings(t *testing.T) {
	tests := []struct {
		raw     string
		want    logging.Settings
		wantErr bool
	}{
		{raw: "", want: logging.Settings{}},
		{raw: "DEBUG", want: logging.Settings{Level: "debug"}},
		{raw: "level=warn, format=json", want: logging.Settings{Level: "warn", Format: "json"}},
		{raw: "colour=on", wantErr: true},
	}
	for _, tt := range tests {
		got, err := logging.ParseSettings(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseSettings(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseSettings(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "logger_test.go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	base, err := logging.New(logging.Options{Format: "console", Level: "info", Writers: []io.Writer{&buf}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithRunID(context.Background(), "run-9")
	ctx = services.WithDay(ctx, "2024-005")
	ctx = services.WithPhase(ctx, "payload")
	logger := logging.NewComponentLogger(logging.WithContext(ctx, base), "dayrunner")
	logger.Info("payload started", logging.String("workdir", "/tmp/w"))

	line := buf.String()
	for _, want := range []string{"[dayrunner]", "2024-005 (payload)", "payload started", "workdir=/tmp/w"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Writers: []io.Writer{&buf}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "relocation failed", "relocation_failed", logging.String(logging.FieldImpact, "output stays in workdir"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry[logging.FieldEventType] != "relocation_failed" {
		t.Fatalf("missing event type: %v", entry)
	}
	if entry[logging.FieldErrorHint] == nil {
		t.Fatalf("missing default error hint: %v", entry)
	}
	if entry[logging.FieldImpact] != "output stays in workdir" {
		t.Fatalf("explicit impact overwritten: %v", entry)
	}
}

func TestErrorWithContextKeepsExplicitHint(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Writers: []io.Writer{&buf}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.ErrorWithContext(logger, "run aborted", "run_aborted", logging.String(logging.FieldErrorHint, "fix the config"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry[logging.FieldEventType] != "run_aborted" || entry[logging.FieldErrorHint] != "fix the config" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry[logging.FieldImpact]; ok {
		t.Fatalf("error entries carry no default impact: %v", entry)
	}
}

func TestDayLogReceivesRecordsAndRawOutput(t *testing.T) {
	dir := t.TempDir()
	d := day.New(2024, 5)
	dayLog, err := logging.OpenDayLog(dir, d, "abcdef0123", "info", "console")
	if err != nil {
		t.Fatalf("OpenDayLog: %v", err)
	}
	want := filepath.Join(dir, "2024", "2024-005-abcdef01.log")
	if dayLog.Path != want {
		t.Fatalf("day log path = %q, want %q", dayLog.Path, want)
	}

	logger := logging.TeeLogger(logging.NewNop(), dayLog.Handler())
	logger.Info("day started")
	if _, err := dayLog.Write([]byte("payload line\n")); err != nil {
		t.Fatalf("write raw output: %v", err)
	}
	if err := dayLog.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := dayLog.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	content, err := os.ReadFile(dayLog.Path)
	if err != nil {
		t.Fatalf("read day log: %v", err)
	}
	if !strings.Contains(string(content), "day started") || !strings.Contains(string(content), "payload line") {
		t.Fatalf("unexpected day log content %q", content)
	}
}
