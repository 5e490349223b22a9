package testsupport

import (
	"path/filepath"
	"testing"

	"dayrun/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a finalized config seeded with unique temp directories
// per test. Hooks are disabled, the retry policy is the default one and the
// stop file lives under the state directory.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.WorkDirectory = filepath.Join(base, "work", "{yyyy}", "{ddd}")
	cfgVal.Paths.BaseDirectory = filepath.Join(base, "output")
	cfgVal.Run.StopFile = filepath.Join(base, "state", "STOP")
	cfgVal.Run.HeartbeatIntervalSeconds = 3600
	cfgVal.Run.StaleLockSeconds = 7200
	cfgVal.Logging.RetentionDays = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Finalize(); err != nil {
		t.Fatalf("finalize test config: %v", err)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("create test directories: %v", err)
	}
	return builder.cfg
}

// WithStopFile overrides the stop marker path. Empty disables halting.
func WithStopFile(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Run.StopFile = path
	}
}

// WithHooks sets the pre-run and post-run hook commands.
func WithHooks(pre, post string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Hooks.PrerunScript = pre
		b.cfg.Hooks.PostrunScript = post
	}
}

// WithRetry sets the retry policy.
func WithRetry(maxAgeDays, intervalDays int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Retry.MaxAgeDays = maxAgeDays
		b.cfg.Retry.IntervalDays = intervalDays
	}
}

// WithWindow sets explicit bounds and the per-run cap.
func WithWindow(start, end string, maxDays int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Window.StartDate = start
		b.cfg.Window.EndDate = end
		b.cfg.Window.MaxDaysPerRun = maxDays
	}
}

// WithTarget sets output.target_directory relative to the temp root.
func WithTarget(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Output.TargetDirectory = filepath.Join(b.baseDir, name)
	}
}

// With applies an arbitrary mutation.
func With(fn func(*config.Config)) ConfigOption {
	return func(b *configBuilder) {
		fn(b.cfg)
	}
}
