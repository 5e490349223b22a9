package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"dayrun/internal/services"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir      string `toml:"state_dir"`
	LogDir        string `toml:"log_dir"`
	WorkDirectory string `toml:"work_directory"`
	BaseDirectory string `toml:"base_directory"`
}

// Run contains run guard and per-day execution limits.
type Run struct {
	StopFile                 string `toml:"stop_file"`
	LockFile                 string `toml:"lock_file"`
	OverrideLock             bool   `toml:"override_lock"`
	DayTimeoutSeconds        int    `toml:"day_timeout_seconds"`
	HeartbeatIntervalSeconds int    `toml:"heartbeat_interval_seconds"`
	StaleLockSeconds         int    `toml:"stale_lock_seconds"`
}

// Window contains date window bounds and defaults.
type Window struct {
	StartDate     string `toml:"start_date"`
	EndDate       string `toml:"end_date"`
	MaxDaysPerRun int    `toml:"max_days_per_run"`
	LookbackDays  int    `toml:"lookback_days"`
	// StartPolicy selects how a missing start_date is filled:
	// earliest_eligible, lookback, or yesterday.
	StartPolicy string `toml:"start_policy"`
}

// Retry contains the failed-day retry policy. Both values zero means force retry.
type Retry struct {
	MaxAgeDays   int `toml:"retry_max_age_days"`
	IntervalDays int `toml:"retry_interval_days"`
}

// Hooks contains the pre-run and post-run commands. "none" disables a hook.
type Hooks struct {
	PrerunScript  string `toml:"prerun_script"`
	PostrunScript string `toml:"postrun_script"`
}

// Payload contains the per-day command run by the CLI.
type Payload struct {
	Command string `toml:"command"`
}

// ObjectStore contains credentials for s3:// relocation targets.
type ObjectStore struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Output contains relocation targets for each day's working directory.
type Output struct {
	TargetDirectory string      `toml:"target_directory"`
	PCFCopyDir      string      `toml:"pcf_copy_dir"`
	PCFFailCopyDir  string      `toml:"pcf_fail_copy_dir"`
	Move            bool        `toml:"move"`
	ObjectStore     ObjectStore `toml:"object_store"`
}

// State contains the per-day record store selection.
type State struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
	// Settings is forwarded verbatim to the logging package (logsettings).
	Settings string `toml:"logsettings"`
}

// Config encapsulates all configuration values for dayrun.
//
// Configuration sections by subsystem:
//   - Paths: state, log, working and base directories
//   - Run: lock and stop markers, per-day timeout, lock heartbeat
//   - Window: date bounds, per-run cap, default start policy
//   - Retry: failed-day age and interval gates
//   - Hooks: pre/post run commands
//   - Payload: the per-day command
//   - Output: relocation targets
//   - State: record store backend
//   - Logging: log format, level, and retention
type Config struct {
	Paths   Paths   `toml:"paths"`
	Run     Run     `toml:"run"`
	Window  Window  `toml:"window"`
	Retry   Retry   `toml:"retry"`
	Hooks   Hooks   `toml:"hooks"`
	Payload Payload `toml:"payload"`
	Output  Output  `toml:"output"`
	State   State   `toml:"state"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/dayrun/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. Overrides (key=value) are applied after the
// file and before validation.
func Load(path string, overrides ...string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, configError("open config", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, configError("parse config "+resolvedPath, err)
		}
	}

	if err := cfg.ApplyOverrides(overrides); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// Finalize normalizes and validates a config assembled in code (tests, CLI overrides).
func (c *Config) Finalize() error {
	if err := c.normalize(); err != nil {
		return err
	}
	return c.Validate()
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", false, configError("config file "+expanded, err)
			}
			return "", false, configError("stat config", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("dayrun.toml")
	if err != nil {
		return "", false, configError("resolve project config", err)
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the run lock file location.
func (c *Config) LockPath() string {
	if strings.TrimSpace(c.Run.LockFile) != "" {
		return c.Run.LockFile
	}
	return filepath.Join(c.Paths.StateDir, "dayrun.lock")
}

// StatePath returns the state store location for the configured backend.
func (c *Config) StatePath() string {
	if strings.TrimSpace(c.State.Path) != "" {
		return c.State.Path
	}
	if c.State.Backend == BackendYAML {
		return filepath.Join(c.Paths.StateDir, "days")
	}
	return filepath.Join(c.Paths.StateDir, "dayrun.db")
}

// DayLogDir returns the directory holding per-day log files.
func (c *Config) DayLogDir() string {
	return filepath.Join(c.Paths.LogDir, "days")
}

// DayTimeout returns the per-day timeout, zero meaning unlimited.
func (c *Config) DayTimeout() time.Duration {
	return time.Duration(c.Run.DayTimeoutSeconds) * time.Second
}

// HeartbeatInterval returns how often the lock owner record is refreshed.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Run.HeartbeatIntervalSeconds) * time.Second
}

// StaleLockAfter returns the heartbeat age after which a lock owner is reported stale.
func (c *Config) StaleLockAfter() time.Duration {
	return time.Duration(c.Run.StaleLockSeconds) * time.Second
}

// ForceRetry reports whether the retry policy is in force-retry mode.
func (c *Config) ForceRetry() bool {
	return c.Retry.MaxAgeDays == 0 && c.Retry.IntervalDays == 0
}

// ApplyTestMode points relocation at a single local directory, drops the
// production targets and raises logging to debug.
func (c *Config) ApplyTestMode(localTarget string) {
	c.Output.TargetDirectory = localTarget
	c.Output.PCFCopyDir = ""
	c.Output.PCFFailCopyDir = ""
	c.Output.Move = false
	c.Logging.Level = "debug"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	pathValue = os.ExpandEnv(pathValue)
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Marshal renders the config as TOML.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

func configError(message string, err error) error {
	return services.Wrap(services.ErrConfiguration, "config", "", message, err)
}
