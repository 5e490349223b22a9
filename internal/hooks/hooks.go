// Package hooks runs the operator-configured pre-run and post-run commands
// that bracket each day's payload.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"dayrun/internal/day"
	"dayrun/internal/logging"
	"dayrun/internal/services"
)

var commandContext = exec.CommandContext

const (
	defaultShell = "/bin/sh"
	// waitDelay bounds how long Wait blocks on output pipes held open by
	// grandchildren after the shell itself exits or is killed.
	waitDelay = 5 * time.Second
)

// Hook is either None or a shell command.
type Hook struct {
	command string
}

// None returns the hook that does nothing.
func None() Hook { return Hook{} }

// Command returns a hook running cmd through the shell.
func Command(cmd string) Hook { return Hook{command: strings.TrimSpace(cmd)} }

// Parse maps empty or case-insensitive "none" to None.
func Parse(value string) Hook {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || strings.EqualFold(trimmed, "none") {
		return None()
	}
	return Command(trimmed)
}

// IsNone reports whether the hook is disabled.
func (h Hook) IsNone() bool { return h.command == "" }

// CommandLine returns the unexpanded shell command.
func (h Hook) CommandLine() string { return h.command }

func (h Hook) String() string {
	if h.IsNone() {
		return "none"
	}
	return h.command
}

// Env describes the day a command runs for.
type Env struct {
	Day     day.Day
	WorkDir string
	RunID   string
	Phase   string
	// Output receives combined stdout and stderr. Nil discards it.
	Output io.Writer
}

// Environ returns the process environment plus the DAYRUN_* variables.
func (e Env) Environ() []string {
	environ := append(os.Environ(), day.Env(e.Day)...)
	return append(environ,
		"DAYRUN_WORKDIR="+e.WorkDir,
		"DAYRUN_RUN_ID="+e.RunID,
		"DAYRUN_PHASE="+e.Phase,
	)
}

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Command string
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%q exited with status %d", e.Command, e.Code)
}

// Exec expands day placeholders in command and runs it with shell -c. A
// missing or non-directory WorkDir leaves the working directory unchanged.
func Exec(ctx context.Context, shell, command string, env Env) error {
	if shell == "" {
		shell = defaultShell
	}
	expanded := day.Expand(command, env.Day)
	cmd := commandContext(ctx, shell, "-c", expanded) //nolint:gosec
	cmd.Env = env.Environ()
	if env.WorkDir != "" {
		if info, err := os.Stat(env.WorkDir); err == nil && info.IsDir() {
			cmd.Dir = env.WorkDir
		}
	}
	output := env.Output
	if output == nil {
		output = io.Discard
	}
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%q interrupted: %w", expanded, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() >= 0 {
			return &ExitError{Command: expanded, Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("%q terminated: %w", expanded, err)
	}
	return fmt.Errorf("start %q: %w", expanded, err)
}

// Runner executes hooks.
type Runner struct {
	Shell  string
	Logger *slog.Logger
}

// NewRunner returns a runner using /bin/sh.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{Shell: defaultShell, Logger: logging.NewComponentLogger(logger, "hooks")}
}

// Run executes h for env. None returns nil immediately. Spawn failures and
// non-zero exits are wrapped with services.ErrHookFailure.
func (r *Runner) Run(ctx context.Context, h Hook, env Env) error {
	if h.IsNone() {
		return nil
	}
	logger := r.logger()
	started := time.Now()
	logger.Debug("hook started",
		logging.String(logging.FieldPhase, env.Phase),
		logging.String("command", h.CommandLine()),
	)
	err := Exec(ctx, r.Shell, h.CommandLine(), env)
	if err != nil {
		return services.Wrap(services.ErrHookFailure, "hooks", env.Phase, "", err)
	}
	logger.Debug("hook finished",
		logging.String(logging.FieldPhase, env.Phase),
		logging.Duration("duration", time.Since(started)),
	)
	return nil
}

func (r *Runner) logger() *slog.Logger {
	if r == nil || r.Logger == nil {
		return logging.NewNop()
	}
	return r.Logger
}
