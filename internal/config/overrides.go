package config

import (
	"fmt"
	"strconv"
	"strings"
)

// flatKeys maps the bare keys accepted by the operator-facing key/value
// interface onto their dotted TOML location.
var flatKeys = map[string]string{
	"stop_file":           "run.stop_file",
	"override_lock":       "run.override_lock",
	"retry_max_age_days":  "retry.retry_max_age_days",
	"retry_interval_days": "retry.retry_interval_days",
	"start_date":          "window.start_date",
	"end_date":            "window.end_date",
	"max_days_per_run":    "window.max_days_per_run",
	"prerun_script":       "hooks.prerun_script",
	"postrun_script":      "hooks.postrun_script",
	"target_directory":    "output.target_directory",
	"pcf_copy_dir":        "output.pcf_copy_dir",
	"pcf_fail_copy_dir":   "output.pcf_fail_copy_dir",
	"base_directory":      "paths.base_directory",
	"logsettings":         "logging.logsettings",
}

type setter func(c *Config, value string) error

func stringField(field func(*Config) *string) setter {
	return func(c *Config, value string) error {
		*field(c) = value
		return nil
	}
}

func intField(field func(*Config) *int) setter {
	return func(c *Config, value string) error {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("expected integer, got %q", value)
		}
		*field(c) = n
		return nil
	}
}

func boolField(field func(*Config) *bool) setter {
	return func(c *Config, value string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("expected boolean, got %q", value)
		}
		*field(c) = b
		return nil
	}
}

var setters = map[string]setter{
	"paths.state_dir":                stringField(func(c *Config) *string { return &c.Paths.StateDir }),
	"paths.log_dir":                  stringField(func(c *Config) *string { return &c.Paths.LogDir }),
	"paths.work_directory":           stringField(func(c *Config) *string { return &c.Paths.WorkDirectory }),
	"paths.base_directory":           stringField(func(c *Config) *string { return &c.Paths.BaseDirectory }),
	"run.stop_file":                  stringField(func(c *Config) *string { return &c.Run.StopFile }),
	"run.lock_file":                  stringField(func(c *Config) *string { return &c.Run.LockFile }),
	"run.override_lock":              boolField(func(c *Config) *bool { return &c.Run.OverrideLock }),
	"run.day_timeout_seconds":        intField(func(c *Config) *int { return &c.Run.DayTimeoutSeconds }),
	"run.heartbeat_interval_seconds": intField(func(c *Config) *int { return &c.Run.HeartbeatIntervalSeconds }),
	"run.stale_lock_seconds":         intField(func(c *Config) *int { return &c.Run.StaleLockSeconds }),
	"window.start_date":              stringField(func(c *Config) *string { return &c.Window.StartDate }),
	"window.end_date":                stringField(func(c *Config) *string { return &c.Window.EndDate }),
	"window.max_days_per_run":        intField(func(c *Config) *int { return &c.Window.MaxDaysPerRun }),
	"window.lookback_days":           intField(func(c *Config) *int { return &c.Window.LookbackDays }),
	"window.start_policy":            stringField(func(c *Config) *string { return &c.Window.StartPolicy }),
	"retry.retry_max_age_days":       intField(func(c *Config) *int { return &c.Retry.MaxAgeDays }),
	"retry.retry_interval_days":      intField(func(c *Config) *int { return &c.Retry.IntervalDays }),
	"hooks.prerun_script":            stringField(func(c *Config) *string { return &c.Hooks.PrerunScript }),
	"hooks.postrun_script":           stringField(func(c *Config) *string { return &c.Hooks.PostrunScript }),
	"payload.command":                stringField(func(c *Config) *string { return &c.Payload.Command }),
	"output.target_directory":        stringField(func(c *Config) *string { return &c.Output.TargetDirectory }),
	"output.pcf_copy_dir":            stringField(func(c *Config) *string { return &c.Output.PCFCopyDir }),
	"output.pcf_fail_copy_dir":       stringField(func(c *Config) *string { return &c.Output.PCFFailCopyDir }),
	"output.move":                    boolField(func(c *Config) *bool { return &c.Output.Move }),
	"output.object_store.endpoint":   stringField(func(c *Config) *string { return &c.Output.ObjectStore.Endpoint }),
	"output.object_store.access_key": stringField(func(c *Config) *string { return &c.Output.ObjectStore.AccessKey }),
	"output.object_store.secret_key": stringField(func(c *Config) *string { return &c.Output.ObjectStore.SecretKey }),
	"output.object_store.region":     stringField(func(c *Config) *string { return &c.Output.ObjectStore.Region }),
	"output.object_store.use_ssl":    boolField(func(c *Config) *bool { return &c.Output.ObjectStore.UseSSL }),
	"state.backend":                  stringField(func(c *Config) *string { return &c.State.Backend }),
	"state.path":                     stringField(func(c *Config) *string { return &c.State.Path }),
	"logging.level":                  stringField(func(c *Config) *string { return &c.Logging.Level }),
	"logging.format":                 stringField(func(c *Config) *string { return &c.Logging.Format }),
	"logging.retention_days":         intField(func(c *Config) *int { return &c.Logging.RetentionDays }),
	"logging.logsettings":            stringField(func(c *Config) *string { return &c.Logging.Settings }),
}

// Set assigns a single configuration key. Keys are either the bare operator
// names (stop_file, retry_max_age_days, ...) or dotted section.key paths.
// Callers must run Finalize afterwards to normalize and validate.
func (c *Config) Set(key, value string) error {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if dotted, ok := flatKeys[normalized]; ok {
		normalized = dotted
	}
	set, ok := setters[normalized]
	if !ok {
		return configError("set", fmt.Errorf("unknown key %q", key))
	}
	if err := set(c, value); err != nil {
		return configError("set "+normalized, err)
	}
	return nil
}

// ApplyOverrides applies key=value assignments in order.
func (c *Config) ApplyOverrides(assignments []string) error {
	for _, assignment := range assignments {
		key, value, ok := strings.Cut(assignment, "=")
		if !ok {
			return configError("set", fmt.Errorf("override %q must be key=value", assignment))
		}
		if err := c.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}
