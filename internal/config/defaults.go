package config

const (
	defaultStateDir          = "~/.local/share/dayrun/state"
	defaultLogDir            = "~/.local/share/dayrun/logs"
	defaultWorkDirectory     = "~/.local/share/dayrun/work/{yyyy}/{ddd}"
	defaultBaseDirectory     = "~/.local/share/dayrun/output"
	defaultHeartbeatInterval = 30
	defaultStaleLockSeconds  = 300
	defaultMaxDaysPerRun     = 7
	defaultLookbackDays      = 14
	defaultRetryMaxAgeDays   = 14
	defaultRetryIntervalDays = 1
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 60

	// HookNone is the sentinel that disables a hook.
	HookNone = "none"

	StartPolicyEarliestEligible = "earliest_eligible"
	StartPolicyLookback         = "lookback"
	StartPolicyYesterday        = "yesterday"

	BackendSQLite = "sqlite"
	BackendYAML   = "yaml"
	BackendMemory = "memory"
)

// Default returns a Config populated with repository defaults. The stop file is
// left unset: halting is unsupported until one is configured.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:      defaultStateDir,
			LogDir:        defaultLogDir,
			WorkDirectory: defaultWorkDirectory,
			BaseDirectory: defaultBaseDirectory,
		},
		Run: Run{
			HeartbeatIntervalSeconds: defaultHeartbeatInterval,
			StaleLockSeconds:         defaultStaleLockSeconds,
		},
		Window: Window{
			EndDate:       "yesterday",
			MaxDaysPerRun: defaultMaxDaysPerRun,
			LookbackDays:  defaultLookbackDays,
			StartPolicy:   StartPolicyEarliestEligible,
		},
		Retry: Retry{
			MaxAgeDays:   defaultRetryMaxAgeDays,
			IntervalDays: defaultRetryIntervalDays,
		},
		Hooks: Hooks{
			PrerunScript:  HookNone,
			PostrunScript: HookNone,
		},
		State: State{
			Backend: BackendSQLite,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
