package main

import (
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"dayrun/internal/config"
	"dayrun/internal/day"
	"dayrun/internal/runguard"
)

type commandContext struct {
	configFlag *string
	setFlags   *[]string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	now func() time.Time
}

func newCommandContext(configFlag *string, setFlags *[]string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		setFlags:   setFlags,
		now:        time.Now,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		var overrides []string
		if c.setFlags != nil {
			overrides = *c.setFlags
		}
		cfg, resolved, _, err := config.Load(path, overrides...)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// guard builds a run guard for inspection and stop marker commands.
func (c *commandContext) guard(cfg *config.Config) *runguard.Guard {
	return runguard.New(runguard.Options{
		LockPath:   cfg.LockPath(),
		StopPath:   cfg.Run.StopFile,
		StaleAfter: cfg.StaleLockAfter(),
		Now:        c.now,
	})
}

func (c *commandContext) today() day.Day {
	return day.FromTime(c.now())
}

// parseDay accepts every form day.Parse does, relative to today.
func (c *commandContext) parseDay(value string) (*day.Day, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	d, err := day.Parse(value, c.today())
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
