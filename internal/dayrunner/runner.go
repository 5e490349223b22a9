package dayrunner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"time"

	"dayrun/internal/day"
	"dayrun/internal/hooks"
	"dayrun/internal/logging"
	"dayrun/internal/services"
	"dayrun/internal/state"
)

const (
	PhasePre     = "pre"
	PhasePayload = "payload"
	PhasePost    = "post"
)

// DayContext is handed to the payload for one day.
type DayContext struct {
	Day     day.Day
	WorkDir string
	RunID   string
	Logger  *slog.Logger
	// Output is the day's log file; payloads stream raw tool output here.
	Output io.Writer
}

// DayCallback is the per-day unit of work.
type DayCallback func(ctx context.Context, dc DayContext) error

// Hooks brackets the payload.
type Hooks struct {
	Pre  hooks.Hook
	Post hooks.Hook
}

// HookRunner executes a hook for a day.
type HookRunner interface {
	Run(ctx context.Context, h hooks.Hook, env hooks.Env) error
}

// Options configures a Runner.
type Options struct {
	Store  state.Store
	Hooks  HookRunner
	Logger *slog.Logger
	RunID  string
	// DayLogDir receives one log file per processed day. Empty disables day logs.
	DayLogDir string
	LogLevel  string
	LogFormat string
	// DayTimeout bounds hooks plus payload. Zero means no limit.
	DayTimeout time.Duration
	Now        func() time.Time
}

// Outcome describes a processed day.
type Outcome struct {
	Day      day.Day
	Status   state.Status
	Err      error
	Phase    string
	Started  time.Time
	Finished time.Time
	LogPath  string
	WorkDir  string
	Record   state.Record
}

// Runner runs days one at a time.
type Runner struct {
	store      state.Store
	hooks      HookRunner
	logger     *slog.Logger
	runID      string
	dayLogDir  string
	logLevel   string
	logFormat  string
	dayTimeout time.Duration
	now        func() time.Time
}

// New constructs a Runner.
func New(opts Options) *Runner {
	r := &Runner{
		store:      opts.Store,
		hooks:      opts.Hooks,
		logger:     logging.NewComponentLogger(opts.Logger, "dayrunner"),
		runID:      opts.RunID,
		dayLogDir:  opts.DayLogDir,
		logLevel:   opts.LogLevel,
		logFormat:  opts.LogFormat,
		dayTimeout: opts.DayTimeout,
		now:        opts.Now,
	}
	if r.hooks == nil {
		r.hooks = hooks.NewRunner(opts.Logger)
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.logFormat == "" {
		r.logFormat = "json"
	}
	return r
}

// RunDay processes d in workDir. The returned error is non-nil only when a
// state transition could not be persisted; hook and payload failures are
// reported through Outcome.Err with Outcome.Status set to failed.
func (r *Runner) RunDay(ctx context.Context, d day.Day, workDir string, h Hooks, payload DayCallback) (Outcome, error) {
	if r.store == nil {
		return Outcome{Day: d}, services.Wrap(services.ErrConfiguration, "dayrunner", "run", "state store is required", nil)
	}
	if payload == nil {
		return Outcome{Day: d}, services.Wrap(services.ErrConfiguration, "dayrunner", "run", "payload is required", nil)
	}

	ctx = services.WithDay(services.WithRunID(ctx, r.runID), d.String())
	// Transitions are recorded even when the run is being cancelled.
	persistCtx := context.WithoutCancel(ctx)

	outcome := Outcome{Day: d, WorkDir: workDir, Started: r.now()}

	dayLog := r.openDayLog(d)
	defer dayLog.Close()
	if dayLog != nil {
		outcome.LogPath = dayLog.Path
	}
	logger := logging.WithContext(ctx, logging.TeeLogger(r.logger, dayLog.Handler()))

	rec, err := state.Load(persistCtx, r.store, d)
	if err != nil {
		return outcome, err
	}
	rec.Begin(outcome.Started, r.runID)
	rec.WorkDir = workDir
	rec.LogPath = outcome.LogPath
	if err := r.store.Put(persistCtx, rec); err != nil {
		return outcome, err
	}
	logger.Info("day started",
		logging.String(logging.FieldEventType, "day_start"),
		logging.Int("attempt", rec.Attempts),
		logging.String("workdir", workDir),
	)

	dayCtx := ctx
	if r.dayTimeout > 0 {
		var cancel context.CancelFunc
		dayCtx, cancel = context.WithTimeout(ctx, r.dayTimeout)
		defer cancel()
	}

	phase, stepErr := r.steps(dayCtx, d, workDir, h, payload, logger, dayLog)
	if stepErr != nil && errors.Is(dayCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		stepErr = fmt.Errorf("day timed out after %s: %w", r.dayTimeout, stepErr)
	}

	outcome.Finished = r.now()
	outcome.Phase = phase
	outcome.Err = stepErr
	rec.Finish(outcome.Finished, stepErr)
	outcome.Status = rec.Status
	if err := r.store.Put(persistCtx, rec); err != nil {
		return outcome, err
	}
	outcome.Record = rec

	if stepErr != nil {
		logging.ErrorWithContext(logger, "day failed", "day_failed",
			logging.String(logging.FieldPhase, phase),
			logging.ErrorKind(stepErr),
			logging.Error(stepErr),
			logging.String(logging.FieldErrorHint, "see the day log for command output"),
			logging.String("day_log", outcome.LogPath),
			logging.Duration("duration", outcome.Finished.Sub(outcome.Started)),
		)
	} else {
		logger.Info("day succeeded",
			logging.String(logging.FieldEventType, "day_success"),
			logging.Duration("duration", outcome.Finished.Sub(outcome.Started)),
		)
	}
	return outcome, nil
}

func (r *Runner) steps(ctx context.Context, d day.Day, workDir string, h Hooks, payload DayCallback, logger *slog.Logger, output io.Writer) (string, error) {
	env := hooks.Env{Day: d, WorkDir: workDir, RunID: r.runID, Output: output}

	env.Phase = PhasePre
	if err := r.hooks.Run(services.WithPhase(ctx, PhasePre), h.Pre, env); err != nil {
		return PhasePre, err
	}

	payloadCtx := services.WithPhase(ctx, PhasePayload)
	dc := DayContext{
		Day:     d,
		WorkDir: workDir,
		RunID:   r.runID,
		Logger:  logging.WithContext(payloadCtx, logger),
		Output:  output,
	}
	if err := runPayload(payloadCtx, payload, dc); err != nil {
		return PhasePayload, err
	}

	env.Phase = PhasePost
	if err := r.hooks.Run(services.WithPhase(ctx, PhasePost), h.Post, env); err != nil {
		return PhasePost, err
	}
	return "", nil
}

func runPayload(ctx context.Context, payload DayCallback, dc DayContext) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = services.Wrap(services.ErrPayloadFailure, "payload", "", fmt.Sprintf("panic: %v", recovered), nil)
			if dc.Logger != nil {
				dc.Logger.Debug("payload panic stack", logging.String("stack", string(debug.Stack())))
			}
		}
	}()
	if err := payload(ctx, dc); err != nil {
		if errors.Is(err, services.ErrPayloadFailure) {
			return err
		}
		return services.Wrap(services.ErrPayloadFailure, "payload", "", "", err)
	}
	return nil
}

// openDayLog returns nil when day logs are disabled or the file cannot be
// opened; a nil *DayLog discards writes.
func (r *Runner) openDayLog(d day.Day) *logging.DayLog {
	if r.dayLogDir == "" {
		return nil
	}
	dayLog, err := logging.OpenDayLog(r.dayLogDir, d, r.runID, r.logLevel, r.logFormat)
	if err != nil {
		logging.WarnWithContext(r.logger, "day log unavailable", "day_log_unavailable",
			logging.String(logging.FieldDay, d.String()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check log_dir permissions"),
			logging.String(logging.FieldImpact, "hook and payload output for this day is discarded"),
		)
		return nil
	}
	return dayLog
}
