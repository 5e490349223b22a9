// Package payload adapts an external command into the per-day callback the
// day runner invokes.
package payload

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"dayrun/internal/dayrunner"
	"dayrun/internal/hooks"
	"dayrun/internal/logging"
	"dayrun/internal/services"
)

// Command returns a DayCallback that runs template through shell -c (default
// /bin/sh) inside the day's working directory. Day placeholders are expanded
// and the DAYRUN_* environment is exported as for hooks. The working
// directory is created when missing.
func Command(template, shell string) (dayrunner.DayCallback, error) {
	template = strings.TrimSpace(template)
	if template == "" {
		return nil, services.Wrap(services.ErrConfiguration, "payload", "command", "payload.command is empty", nil)
	}
	return func(ctx context.Context, dc dayrunner.DayContext) error {
		if dc.WorkDir != "" {
			if err := os.MkdirAll(dc.WorkDir, 0o755); err != nil {
				return services.Wrap(services.ErrPayloadFailure, "payload", "prepare", "create working directory", err)
			}
		}
		logger := dc.Logger
		if logger == nil {
			logger = logging.NewNop()
		}
		started := time.Now()
		err := hooks.Exec(ctx, shell, template, hooks.Env{
			Day:     dc.Day,
			WorkDir: dc.WorkDir,
			RunID:   dc.RunID,
			Phase:   dayrunner.PhasePayload,
			Output:  dc.Output,
		})
		if err != nil {
			var exitErr *hooks.ExitError
			if errors.As(err, &exitErr) {
				logger.Debug("payload exited non-zero", logging.Int("exit_code", exitErr.Code))
			}
			return services.Wrap(services.ErrPayloadFailure, "payload", "command", "", err)
		}
		logger.Debug("payload finished", logging.Duration("duration", time.Since(started)))
		return nil
	}, nil
}
