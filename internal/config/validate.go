package config

import (
	"errors"
	"fmt"
	"strings"

	"dayrun/internal/day"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateRun(); err != nil {
		return err
	}
	if err := c.validateWindow(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.validateState(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.StateDir == "" {
		return configError("", errors.New("paths.state_dir must be set"))
	}
	if c.Paths.LogDir == "" {
		return configError("", errors.New("paths.log_dir must be set"))
	}
	return nil
}

func (c *Config) validateRun() error {
	if c.Run.DayTimeoutSeconds < 0 {
		return configError("", errors.New("run.day_timeout_seconds must be >= 0"))
	}
	if c.Run.HeartbeatIntervalSeconds <= 0 {
		return configError("", errors.New("run.heartbeat_interval_seconds must be positive"))
	}
	if c.Run.StaleLockSeconds < c.Run.HeartbeatIntervalSeconds {
		return configError("", errors.New("run.stale_lock_seconds must be >= run.heartbeat_interval_seconds"))
	}
	return nil
}

func (c *Config) validateWindow() error {
	if c.Window.MaxDaysPerRun < 0 {
		return configError("", errors.New("window.max_days_per_run must be >= 0"))
	}
	if c.Window.LookbackDays < 0 {
		return configError("", errors.New("window.lookback_days must be >= 0"))
	}
	switch c.Window.StartPolicy {
	case StartPolicyEarliestEligible, StartPolicyLookback, StartPolicyYesterday:
	default:
		return configError("", fmt.Errorf("window.start_policy must be one of %s, %s, %s (got %q)",
			StartPolicyEarliestEligible, StartPolicyLookback, StartPolicyYesterday, c.Window.StartPolicy))
	}
	// Relative forms are checked against a fixed reference; only the syntax matters here.
	ref := day.New(2000, 1)
	for key, value := range map[string]string{"window.start_date": c.Window.StartDate, "window.end_date": c.Window.EndDate} {
		if value == "" {
			continue
		}
		if _, err := day.Parse(value, ref); err != nil {
			return configError(key, err)
		}
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAgeDays < 0 {
		return configError("", errors.New("retry.retry_max_age_days must be >= 0"))
	}
	if c.Retry.IntervalDays < 0 {
		return configError("", errors.New("retry.retry_interval_days must be >= 0"))
	}
	return nil
}

func (c *Config) validateOutput() error {
	targets := []string{c.Output.TargetDirectory, c.Output.PCFCopyDir, c.Output.PCFFailCopyDir}
	for _, target := range targets {
		if !strings.HasPrefix(strings.TrimSpace(target), "s3://") {
			continue
		}
		if strings.TrimSpace(c.Output.ObjectStore.Endpoint) == "" {
			return configError("", fmt.Errorf("output.object_store.endpoint is required for target %q", target))
		}
	}
	return nil
}

func (c *Config) validateState() error {
	switch c.State.Backend {
	case BackendSQLite, BackendYAML, BackendMemory:
		return nil
	default:
		return configError("", fmt.Errorf("state.backend must be one of %s, %s, %s (got %q)",
			BackendSQLite, BackendYAML, BackendMemory, c.State.Backend))
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return configError("", fmt.Errorf("logging.level %q is not recognised", c.Logging.Level))
	}
}
