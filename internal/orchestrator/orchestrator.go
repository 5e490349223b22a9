package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"dayrun/internal/config"
	"dayrun/internal/day"
	"dayrun/internal/dayrunner"
	"dayrun/internal/hooks"
	"dayrun/internal/logging"
	"dayrun/internal/relocate"
	"dayrun/internal/retry"
	"dayrun/internal/runguard"
	"dayrun/internal/services"
	"dayrun/internal/state"
)

// Deps wires the orchestrator's collaborators. Only Config and Store are
// required.
type Deps struct {
	Config *config.Config
	Store  state.Store
	Logger *slog.Logger

	// Hooks runs pre/post hooks; defaults to hooks.NewRunner.
	Hooks dayrunner.HookRunner
	// Relocator defaults to relocate.FromConfig.
	Relocator *relocate.Relocator
	// Markers and Locker back the run guard; nil selects the filesystem.
	Markers runguard.MarkerStore
	Locker  runguard.Locker

	Now      func() time.Time
	NewRunID func() string
}

// Orchestrator executes runs. It is not safe for concurrent Run calls; the
// run lock enforces one run per host anyway.
type Orchestrator struct {
	cfg       *config.Config
	store     state.Store
	base      *slog.Logger
	logger    *slog.Logger
	hooks     dayrunner.HookRunner
	relocator *relocate.Relocator
	markers   runguard.MarkerStore
	locker    runguard.Locker
	now       func() time.Time
	newRunID  func() string
}

// New constructs an orchestrator.
func New(deps Deps) *Orchestrator {
	o := &Orchestrator{
		cfg:       deps.Config,
		store:     deps.Store,
		base:      deps.Logger,
		logger:    logging.NewComponentLogger(deps.Logger, "orchestrator"),
		hooks:     deps.Hooks,
		relocator: deps.Relocator,
		markers:   deps.Markers,
		locker:    deps.Locker,
		now:       deps.Now,
		newRunID:  deps.NewRunID,
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newRunID == nil {
		o.newRunID = uuid.NewString
	}
	if o.hooks == nil {
		o.hooks = hooks.NewRunner(deps.Logger)
	}
	return o
}

// Run processes the resolved window with payload. The returned error is nil
// for Completed and Stopped runs and carries the cause for Aborted ones.
func (o *Orchestrator) Run(ctx context.Context, payload dayrunner.DayCallback, opts RunOptions) (Result, error) {
	res := Result{State: StateIdle, RunID: opts.RunID, Started: o.now()}
	if res.RunID == "" {
		res.RunID = o.newRunID()
	}
	ctx = services.WithRunID(ctx, res.RunID)
	logger := logging.WithContext(ctx, o.logger)

	finish := func(st State, err error) (Result, error) {
		res.State = st
		res.Finished = o.now()
		o.logSummary(logger, res, err)
		return res, err
	}

	if err := o.validate(payload, opts); err != nil {
		return finish(StateAborted, err)
	}
	relocator, err := o.relocatorFor()
	if err != nil {
		return finish(StateAborted, err)
	}

	guard := runguard.New(runguard.Options{
		LockPath:          o.cfg.LockPath(),
		StopPath:          o.cfg.Run.StopFile,
		Override:          opts.OverrideLock || o.cfg.Run.OverrideLock,
		StaleAfter:        o.cfg.StaleLockAfter(),
		HeartbeatInterval: o.cfg.HeartbeatInterval(),
		Markers:           o.markers,
		Locker:            o.locker,
		RunID:             res.RunID,
		Logger:            o.base,
		Now:               o.now,
	})
	handle, err := guard.Acquire(ctx)
	if err != nil {
		return finish(StateAborted, err)
	}
	defer handle.Release()
	res.State = StateLocked
	res.LockOverridden = handle.Overridden
	logger.Debug("run lock held", logging.Bool("overridden", handle.Overridden))
	if opts.OnLocked != nil {
		opts.OnLocked()
	}

	if guard.CheckStop() {
		logger.Info("stop marker present; no days processed",
			logging.String(logging.FieldEventType, "run_stopped"),
			logging.String("stop_file", guard.StopPath()),
		)
		return finish(StateStopped, nil)
	}

	persistCtx := context.WithoutCancel(ctx)
	reclaimed, err := o.store.ReclaimInterrupted(persistCtx, res.RunID)
	if err != nil {
		return finish(StateAborted, err)
	}
	res.Reclaimed = reclaimed
	if reclaimed > 0 {
		logging.WarnWithContext(logger, "interrupted days marked failed", "days_reclaimed",
			logging.Int("count", int(reclaimed)),
			logging.String(logging.FieldErrorHint, "a previous run ended while a day was running"),
			logging.String(logging.FieldImpact, "those days are retried under the retry policy"),
		)
	}

	policy := o.policy(opts)
	win, err := o.resolveWindow(persistCtx, opts, policy)
	if err != nil {
		return finish(StateAborted, err)
	}
	res.Window = win.Days
	res.Deferred = win.Deferred
	if win.Empty() {
		logger.Info("no days to process",
			logging.String(logging.FieldEventType, "window_empty"),
			logging.String("start_policy", o.cfg.Window.StartPolicy),
		)
	}
	if win.Deferred > 0 {
		logger.Info("window capped; remaining days deferred to a later run",
			logging.Int("deferred", win.Deferred),
			logging.String("window_end", win.End.String()),
		)
	}
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("days", len(win.Days)),
		logging.String("first_day", firstDay(win.Days)),
		logging.Bool("force_retry", policy.Force()),
		logging.Bool("test_mode", opts.Test),
	)
	res.State = StateRunning

	if guard.HaltSupported() {
		watchCtx, stopWatch := context.WithCancel(ctx)
		defer stopWatch()
		if _, err := guard.WatchStop(watchCtx, logger); err != nil {
			logger.Debug("stop marker watcher unavailable", logging.Error(err))
		}
	}

	runner := dayrunner.New(dayrunner.Options{
		Store:      o.store,
		Hooks:      o.hooks,
		Logger:     o.base,
		RunID:      res.RunID,
		DayLogDir:  o.cfg.DayLogDir(),
		LogLevel:   o.cfg.Logging.Level,
		DayTimeout: o.cfg.DayTimeout(),
		Now:        o.now,
	})
	dayHooks := dayrunner.Hooks{
		Pre:  hooks.Parse(o.cfg.Hooks.PrerunScript),
		Post: hooks.Parse(o.cfg.Hooks.PostrunScript),
	}

	for _, d := range win.Days {
		if guard.CheckStop() {
			logger.Info("stop marker present; halting before next day",
				logging.String(logging.FieldEventType, "run_stopped"),
				logging.String("next_day", d.String()),
			)
			return finish(StateStopped, nil)
		}
		if err := ctx.Err(); err != nil {
			return finish(StateAborted, err)
		}

		rec, err := state.Load(persistCtx, o.store, d)
		if err != nil {
			return finish(StateAborted, err)
		}
		decision := retry.Decide(rec, o.now(), policy)
		logger.Debug("retry eligibility",
			logging.Args(append(logging.DecisionAttrs("retry_eligibility", decision.Result(), decision.Reason),
				logging.String(logging.FieldDay, d.String()),
				logging.String("status", string(rec.Status)),
			)...)...,
		)
		if !decision.Eligible {
			res.Skipped = append(res.Skipped, Skip{Day: d, Status: rec.Status, Reason: decision.Reason})
			continue
		}

		dr, err := o.runDay(ctx, runner, relocator, dayHooks, payload, d)
		res.Days = append(res.Days, dr)
		if err != nil {
			return finish(StateAborted, err)
		}
	}
	return finish(StateCompleted, nil)
}

func (o *Orchestrator) runDay(ctx context.Context, runner *dayrunner.Runner, relocator *relocate.Relocator, h dayrunner.Hooks, payload dayrunner.DayCallback, d day.Day) (DayResult, error) {
	workDir := day.Expand(o.cfg.Paths.WorkDirectory, d)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		logging.WarnWithContext(o.logger, "working directory could not be created", "workdir_unavailable",
			logging.String(logging.FieldDay, d.String()),
			logging.String("work_dir", workDir),
			logging.Error(err),
			logging.String(logging.FieldImpact, "hooks run in the current directory"),
		)
	}

	outcome, err := runner.RunDay(ctx, d, workDir, h, payload)
	dr := DayResult{
		Day:      d,
		Status:   outcome.Status,
		Err:      outcome.Err,
		Phase:    outcome.Phase,
		Attempts: outcome.Record.Attempts,
		WorkDir:  workDir,
		LogPath:  outcome.LogPath,
		Started:  outcome.Started,
		Finished: outcome.Finished,
	}
	if err != nil {
		return dr, err
	}

	dayCtx := services.WithDay(ctx, d.String())
	dr.Relocations = relocator.Apply(services.WithPhase(dayCtx, "relocate"), d, workDir, outcome.Status)
	if len(dr.Relocations) == 0 {
		return dr, nil
	}
	dr.Relocated = relocate.Succeeded(dr.Relocations)
	rec := outcome.Record
	rec.Relocated = dr.Relocated
	if err := o.store.Put(context.WithoutCancel(ctx), rec); err != nil {
		return dr, err
	}
	return dr, nil
}

func (o *Orchestrator) validate(payload dayrunner.DayCallback, opts RunOptions) error {
	if o.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "orchestrator", "validate", "configuration is required", nil)
	}
	if o.store == nil {
		return services.Wrap(services.ErrConfiguration, "orchestrator", "validate", "state store is required", nil)
	}
	if payload == nil {
		return services.Wrap(services.ErrConfiguration, "orchestrator", "validate", "payload is required", nil)
	}
	if opts.Test && opts.Day == nil {
		return services.Wrap(services.ErrConfiguration, "orchestrator", "validate", "test mode requires a single day", nil)
	}
	if opts.MaxDays != nil && *opts.MaxDays < 0 {
		return services.Wrap(services.ErrConfiguration, "orchestrator", "validate", "max days must be >= 0", nil)
	}
	return o.cfg.Validate()
}

func (o *Orchestrator) relocatorFor() (*relocate.Relocator, error) {
	if o.relocator != nil {
		return o.relocator, nil
	}
	return relocate.FromConfig(o.cfg, o.base)
}

func (o *Orchestrator) policy(opts RunOptions) retry.Policy {
	if opts.ForceRetry {
		return retry.Policy{}
	}
	return retry.Policy{MaxAgeDays: o.cfg.Retry.MaxAgeDays, IntervalDays: o.cfg.Retry.IntervalDays}
}

func (o *Orchestrator) logSummary(logger *slog.Logger, res Result, err error) {
	counts := res.Counts()
	attrs := []logging.Attr{
		logging.String("state", string(res.State)),
		logging.Int("succeeded", counts.Success),
		logging.Int("failed", counts.Failed),
		logging.Int("skipped", counts.Skipped),
		logging.Int("deferred", counts.Deferred),
		logging.Duration("duration", res.Finished.Sub(res.Started)),
	}
	if err == nil {
		logger.Info("run finished", logging.Args(append(attrs, logging.String(logging.FieldEventType, "run_finished"))...)...)
		return
	}
	hint := "see the error above"
	var running *runguard.AlreadyRunningError
	switch {
	case errors.As(err, &running):
		hint = "wait for the active run or pass --override-lock if it is gone"
	case errors.Is(err, services.ErrConfiguration):
		hint = "fix the configuration and rerun"
	case errors.Is(err, services.ErrInvalidWindow):
		hint = "check start_date and end_date"
	case errors.Is(err, context.Canceled):
		hint = "run was cancelled; remaining days run next time"
	}
	logging.ErrorWithContext(logger, "run aborted", "run_aborted",
		append(attrs,
			logging.ErrorKind(err),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, hint),
		)...,
	)
}

func firstDay(days []day.Day) string {
	if len(days) == 0 {
		return ""
	}
	return days[0].String()
}

// Describe renders a one-line summary of res for CLI output.
func Describe(res Result) string {
	c := res.Counts()
	return fmt.Sprintf("%s: %d succeeded, %d failed, %d skipped, %d deferred", res.State, c.Success, c.Failed, c.Skipped, c.Deferred)
}
