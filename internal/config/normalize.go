package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeRun(); err != nil {
		return err
	}
	c.normalizeWindow()
	c.normalizeHooks()
	if err := c.normalizeOutput(); err != nil {
		return err
	}
	if err := c.normalizeState(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return configError("paths.state_dir", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return configError("paths.log_dir", err)
	}
	if strings.TrimSpace(c.Paths.WorkDirectory) == "" {
		c.Paths.WorkDirectory = defaultWorkDirectory
	}
	if c.Paths.WorkDirectory, err = expandPath(c.Paths.WorkDirectory); err != nil {
		return configError("paths.work_directory", err)
	}
	if strings.TrimSpace(c.Paths.BaseDirectory) == "" {
		c.Paths.BaseDirectory = defaultBaseDirectory
	}
	if c.Paths.BaseDirectory, err = expandPath(c.Paths.BaseDirectory); err != nil {
		return configError("paths.base_directory", err)
	}
	return nil
}

func (c *Config) normalizeRun() error {
	var err error
	if strings.TrimSpace(c.Run.StopFile) == "" {
		if value, ok := os.LookupEnv("DAYRUN_STOP_FILE"); ok {
			c.Run.StopFile = strings.TrimSpace(value)
		}
	}
	if c.Run.StopFile, err = expandPath(strings.TrimSpace(c.Run.StopFile)); err != nil {
		return configError("run.stop_file", err)
	}
	if c.Run.LockFile, err = expandPath(strings.TrimSpace(c.Run.LockFile)); err != nil {
		return configError("run.lock_file", err)
	}
	if c.Run.HeartbeatIntervalSeconds == 0 {
		c.Run.HeartbeatIntervalSeconds = defaultHeartbeatInterval
	}
	if c.Run.StaleLockSeconds == 0 {
		c.Run.StaleLockSeconds = defaultStaleLockSeconds
	}
	return nil
}

func (c *Config) normalizeWindow() {
	c.Window.StartDate = strings.TrimSpace(c.Window.StartDate)
	c.Window.EndDate = strings.TrimSpace(c.Window.EndDate)
	c.Window.StartPolicy = strings.ToLower(strings.TrimSpace(c.Window.StartPolicy))
	if c.Window.StartPolicy == "" {
		c.Window.StartPolicy = StartPolicyEarliestEligible
	}
}

func (c *Config) normalizeHooks() {
	c.Hooks.PrerunScript = strings.TrimSpace(c.Hooks.PrerunScript)
	c.Hooks.PostrunScript = strings.TrimSpace(c.Hooks.PostrunScript)
	c.Payload.Command = strings.TrimSpace(c.Payload.Command)
}

// normalizeOutput expands ~ and $VAR in relocation targets but leaves
// relative paths relative so they resolve against paths.base_directory.
func (c *Config) normalizeOutput() error {
	fields := []struct {
		key   string
		value *string
	}{
		{"output.target_directory", &c.Output.TargetDirectory},
		{"output.pcf_copy_dir", &c.Output.PCFCopyDir},
		{"output.pcf_fail_copy_dir", &c.Output.PCFFailCopyDir},
	}
	for _, field := range fields {
		raw := strings.TrimSpace(*field.value)
		if raw == "" || strings.HasPrefix(raw, "s3://") {
			*field.value = raw
			continue
		}
		prefix := ""
		if strings.HasPrefix(raw, "zip:") {
			prefix, raw = "zip:", strings.TrimPrefix(raw, "zip:")
		}
		if !filepath.IsAbs(os.ExpandEnv(raw)) && !strings.HasPrefix(raw, "~") {
			*field.value = prefix + os.ExpandEnv(raw)
			continue
		}
		expanded, err := expandPath(raw)
		if err != nil {
			return configError(field.key, err)
		}
		*field.value = prefix + expanded
	}
	c.Output.ObjectStore.Endpoint = strings.TrimSpace(c.Output.ObjectStore.Endpoint)
	return nil
}

func (c *Config) normalizeState() error {
	c.State.Backend = strings.ToLower(strings.TrimSpace(c.State.Backend))
	if c.State.Backend == "" {
		c.State.Backend = BackendSQLite
	}
	if strings.TrimSpace(c.State.Path) == "" {
		return nil
	}
	var err error
	if c.State.Path, err = expandPath(c.State.Path); err != nil {
		return configError("state.path", fmt.Errorf("expand: %w", err))
	}
	return nil
}

func (c *Config) normalizeLogging() {
	if value, ok := os.LookupEnv("DAYRUN_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	c.Logging.Settings = strings.TrimSpace(c.Logging.Settings)
}
