package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"dayrun/internal/config"
	"dayrun/internal/day"
	"dayrun/internal/services"
	"dayrun/internal/state"
	"dayrun/internal/testsupport"
)

func TestRunProcessesWindowOnce(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"run"}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "Window: 2024-010 .. 2024-012 (3 days)")
	requireContains(t, out, "completed: 3 succeeded, 0 failed, 0 skipped, 0 deferred")

	data, err := os.ReadFile(filepath.Join(env.baseDir, "work", "2024", "011", "out.txt"))
	if err != nil || strings.TrimSpace(string(data)) != "2024-011" {
		t.Fatalf("payload output = %q, %v", data, err)
	}

	out, _, err = runCLI(t, []string{"run"}, env.configPath)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	requireContains(t, out, "completed: 0 succeeded, 0 failed, 3 skipped, 0 deferred")
}

func TestRunMaxDaysDefers(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"run", "--max-days", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "Deferred 2 day(s) to the next run")
	requireContains(t, out, "1 succeeded")
}

func TestRunFailedPayloadStillExitsCleanly(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.With(func(c *config.Config) {
		c.Payload.Command = "exit 4"
	}))

	out, _, err := runCLI(t, []string{"run", "--day", "2024-011"}, env.configPath)
	if err != nil {
		t.Fatalf("day failures must not fail the run: %v", err)
	}
	requireContains(t, out, "2024-011  failed")
	requireContains(t, out, "0 succeeded, 1 failed")
}

func TestRunRejectsBadFlags(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"run", "--start", "2024-400"}, env.configPath); err == nil {
		t.Fatal("expected invalid --start error")
	}
	if _, _, err := runCLI(t, []string{"run", "--max-days=-1"}, env.configPath); err == nil {
		t.Fatal("expected negative --max-days error")
	}
	_, _, err := runCLI(t, []string{"run", "--start", "2024-012", "--end", "2024-010"}, env.configPath)
	if err == nil {
		t.Fatal("expected inverted window error")
	}
}

func TestRunContendedLeavesLogsUntouched(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.With(func(c *config.Config) {
		c.Logging.RetentionDays = 1
	}))
	logDir := env.cfg.Paths.LogDir
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		t.Fatalf("mkdir log dir: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(env.cfg.LockPath()), 0o755); err != nil {
		t.Fatalf("mkdir lock dir: %v", err)
	}

	active := "dayrun-20240101T000000-active00.log"
	stale := filepath.Join(logDir, "dayrun-20230101T000000-old00000.log")
	for _, path := range []string{filepath.Join(logDir, active), stale} {
		if err := os.WriteFile(path, []byte("line\n"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	old := time.Now().Add(-72 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	pointer := filepath.Join(logDir, "dayrun.log")
	if err := os.Symlink(active, pointer); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	holder := flock.New(env.cfg.LockPath())
	locked, err := holder.TryLock()
	if err != nil || !locked {
		t.Fatalf("hold lock: locked=%v err=%v", locked, err)
	}
	defer holder.Unlock()

	out, _, err := runCLI(t, []string{"run"}, env.configPath)
	if !errors.Is(err, services.ErrAlreadyRunning) {
		t.Fatalf("run err = %v, want ErrAlreadyRunning", err)
	}
	if strings.Contains(out, "Run log:") {
		t.Fatalf("contended run reported a run log: %q", out)
	}

	target, err := os.Readlink(pointer)
	if err != nil || target != active {
		t.Fatalf("pointer = %q, %v; want %q", target, err, active)
	}
	entries, err := os.ReadDir(logDir)
	if err != nil {
		t.Fatalf("read log dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	want := []string{filepath.Base(stale), active, "dayrun.log"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("log dir = %v, want %v", names, want)
	}
}

func TestRunReportsRelocationFailure(t *testing.T) {
	env := setupCLITestEnv(t)
	blocked := filepath.Join(env.baseDir, "blocked")
	if err := os.WriteFile(blocked, []byte("not a directory"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	env.cfg.Output.TargetDirectory = filepath.Join(blocked, "out")
	writeTestConfig(t, env.configPath, env.cfg)

	out, _, err := runCLI(t, []string{"run", "--day", "2024-011"}, env.configPath)
	if err != nil {
		t.Fatalf("relocation failures must not fail the run: %v", err)
	}
	requireContains(t, out, "2024-011  success")
	requireContains(t, out, "relocation failed:")
	requireContains(t, out, "1 succeeded, 0 failed")
}

func TestRunTestModeRelocatesLocally(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithTarget("archive"))
	cwd := t.TempDir()
	t.Chdir(cwd)

	out, _, err := runCLI(t, []string{"run", "--test", "2024-011"}, env.configPath)
	if err != nil {
		t.Fatalf("run --test: %v", err)
	}
	requireContains(t, out, "Test output: dayrun-test")
	if _, err := os.Stat(filepath.Join(cwd, "dayrun-test", "011", "out.txt")); err != nil {
		t.Fatalf("expected test relocation: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.baseDir, "archive")); !os.IsNotExist(err) {
		t.Fatal("test mode must not write to the configured target")
	}
}

func TestHaltAndRestart(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"halt"}, env.configPath)
	if err != nil {
		t.Fatalf("halt: %v", err)
	}
	requireContains(t, out, "Stop requested")

	out, _, err = runCLI(t, []string{"run"}, env.configPath)
	if err != nil {
		t.Fatalf("a stopped run must exit cleanly: %v", err)
	}
	requireContains(t, out, "stopped: 0 succeeded")

	out, _, err = runCLI(t, []string{"restart"}, env.configPath)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	requireContains(t, out, "Stop marker removed")

	out, _, err = runCLI(t, []string{"restart"}, env.configPath)
	if err != nil {
		t.Fatalf("second restart: %v", err)
	}
	requireContains(t, out, "No stop marker present")
}

func TestHaltWithoutStopFile(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStopFile(""))

	_, _, err := runCLI(t, []string{"halt"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "stop_file") {
		t.Fatalf("expected stop_file error, got %v", err)
	}
}

func TestStatusShowsRecords(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"run"}, env.configPath); err != nil {
		t.Fatalf("run: %v", err)
	}

	out, _, err := runCLI(t, []string{"status", "--days", "0", "--checks"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Run lock:")
	requireContains(t, out, "[OK] Idle")
	requireContains(t, out, "State directory:")
	requireContains(t, out, "2024-012")
	requireContains(t, out, "Success")

	out, _, err = runCLI(t, []string{"status", "--days", "0", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var report statusReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode status json: %v", err)
	}
	if len(report.Days) != 3 || report.Days[0].Day != "2024-010" || report.Days[0].Status != "success" {
		t.Fatalf("unexpected days: %+v", report.Days)
	}
	if report.Lock.Locked {
		t.Fatal("expected unlocked status")
	}
}

func TestResetReturnsDayToPending(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"run"}, env.configPath); err != nil {
		t.Fatalf("run: %v", err)
	}

	out, _, err := runCLI(t, []string{"reset", "2024-011", "2024-100"}, env.configPath)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	requireContains(t, out, "2024-011: success -> pending")
	requireContains(t, out, "2024-100: no record")

	store := testsupport.MustOpenStore(t, env.cfg)
	rec := testsupport.MustGet(t, store, day.New(2024, 11))
	if rec.Status != state.StatusPending {
		t.Fatalf("status = %s, want pending", rec.Status)
	}

	out, _, err = runCLI(t, []string{"run"}, env.configPath)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	requireContains(t, out, "1 succeeded, 0 failed, 2 skipped")
}

func TestSetOverridesConfig(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"--set", "max_days_per_run=2", "config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "max_days_per_run = 2")

	if _, _, err := runCLI(t, []string{"--set", "no_such_key=1", "status"}, env.configPath); err == nil {
		t.Fatal("expected unknown key error")
	}
}

func TestConfigInitShowValidate(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.With(func(c *config.Config) {
		c.Output.ObjectStore.SecretKey = "hunter2"
	}))

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "hunter2") {
		t.Fatal("config show must redact the secret key")
	}
	requireContains(t, out, "[paths]")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected refusal to overwrite")
	}
	if _, _, _, err := config.Load(target); err != nil {
		t.Fatalf("sample config must load: %v", err)
	}
}

func TestLogsShowsDayLog(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.With(func(c *config.Config) {
		c.Payload.Command = "echo payload-said-{day}"
	}))
	if _, _, err := runCLI(t, []string{"run", "--day", "2024-011"}, env.configPath); err != nil {
		t.Fatalf("run: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "2024-011", "-n", "200"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "payload-said-2024-011")

	if _, _, err := runCLI(t, []string{"logs", "2024-012"}, env.configPath); err == nil {
		t.Fatal("expected missing day log error")
	}
	if _, _, err := runCLI(t, []string{"logs"}, env.configPath); err != nil {
		t.Fatalf("run log: %v", err)
	}
}
