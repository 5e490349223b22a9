package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"dayrun/internal/config"
	"dayrun/internal/logging"
	"dayrun/internal/orchestrator"
	"dayrun/internal/payload"
	"dayrun/internal/preflight"
	"dayrun/internal/relocate"
	"dayrun/internal/state"
)

// testTargetDir receives relocated output in --test mode, relative to the
// current directory.
const testTargetDir = "dayrun-test"

type runFlags struct {
	start        string
	end          string
	single       string
	maxDays      int
	forceRetry   bool
	overrideLock bool
	test         string
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process pending days in the resolved window",
		Long: `Process pending days in the resolved window.

Days are given as YYYY-DDD, YYYY-MM-DD, "today", "yesterday" or a
negative offset such as -3. Without --start the window begins at the
earliest day still eligible under the retry policy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts, err := flags.options(ctx, cmd)
			if err != nil {
				return err
			}
			if opts.Test {
				target, err := filepath.Abs(testTargetDir)
				if err != nil {
					return fmt.Errorf("resolve test target: %w", err)
				}
				cfg.ApplyTestMode(target)
			}
			return executeRun(cmd, cfg, opts)
		},
	}

	cmd.Flags().StringVar(&flags.start, "start", "", "First day of the window")
	cmd.Flags().StringVar(&flags.end, "end", "", "Last day of the window")
	cmd.Flags().StringVar(&flags.single, "day", "", "Process exactly this day")
	cmd.Flags().IntVar(&flags.maxDays, "max-days", 0, "Cap the number of days in the window (0 = no cap)")
	cmd.Flags().BoolVar(&flags.forceRetry, "force-retry", false, "Retry failed days regardless of age and interval")
	cmd.Flags().BoolVar(&flags.overrideLock, "override-lock", false, "Proceed even when another run holds the lock")
	cmd.Flags().StringVar(&flags.test, "test", "", "Diagnostic run of one day with output under ./"+testTargetDir)
	cmd.MarkFlagsMutuallyExclusive("day", "test")
	cmd.MarkFlagsMutuallyExclusive("start", "test")
	cmd.MarkFlagsMutuallyExclusive("end", "test")
	return cmd
}

func (f runFlags) options(ctx *commandContext, cmd *cobra.Command) (orchestrator.RunOptions, error) {
	opts := orchestrator.RunOptions{
		ForceRetry:   f.forceRetry,
		OverrideLock: f.overrideLock,
	}
	var err error
	if opts.Start, err = ctx.parseDay(f.start); err != nil {
		return opts, fmt.Errorf("--start: %w", err)
	}
	if opts.End, err = ctx.parseDay(f.end); err != nil {
		return opts, fmt.Errorf("--end: %w", err)
	}
	if opts.Day, err = ctx.parseDay(f.single); err != nil {
		return opts, fmt.Errorf("--day: %w", err)
	}
	if strings.TrimSpace(f.test) != "" {
		if opts.Day, err = ctx.parseDay(f.test); err != nil {
			return opts, fmt.Errorf("--test: %w", err)
		}
		opts.Test = true
	}
	if cmd.Flags().Changed("max-days") {
		if f.maxDays < 0 {
			return opts, errors.New("--max-days must be >= 0")
		}
		maxDays := f.maxDays
		opts.MaxDays = &maxDays
	}
	return opts, nil
}

func executeRun(cmd *cobra.Command, cfg *config.Config, opts orchestrator.RunOptions) error {
	opts.RunID = uuid.NewString()
	logger, runLog, err := logging.NewFromConfig(cfg, opts.RunID)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer runLog.Close()

	// The run log, its pointer and retention only touch shared state once
	// this invocation owns the run.
	opts.OnLocked = func() {
		retention := []logging.RetentionTarget{
			{Dir: cfg.DayLogDir(), Pattern: "*.log", Recursive: true},
		}
		if runLog != nil {
			if err := runLog.Activate(); err != nil {
				logging.WarnWithContext(logger, "run log unavailable", "run_log_unavailable",
					logging.Error(err),
					logging.String(logging.FieldImpact, "this run logs to stdout only"),
				)
			}
			retention = append(retention, logging.RetentionTarget{
				Dir:     cfg.Paths.LogDir,
				Pattern: "dayrun-*.log",
				Exclude: []string{runLog.Path},
			})
		}
		logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, retention...)
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := checkPreflight(runCtx, cfg, logger); err != nil {
		return err
	}

	fn, err := payload.Command(cfg.Payload.Command, "")
	if err != nil {
		return err
	}
	store, err := state.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	orch := orchestrator.New(orchestrator.Deps{
		Config: cfg,
		Store:  store,
		Logger: logger,
	})
	res, err := orch.Run(runCtx, fn, opts)
	printRunResult(cmd.OutOrStdout(), res, opts)
	if runLog.Active() {
		fmt.Fprintf(cmd.OutOrStdout(), "Run log: %s\n", runLog.Path)
	}
	return err
}

// checkPreflight logs warnings and fails on blocking checks.
func checkPreflight(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	results := preflight.RunAll(ctx, cfg)
	for _, r := range results {
		if !r.Passed && r.Warning {
			logging.WarnWithContext(logger, "preflight check failed", "preflight_warning",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldErrorHint, "verify the command or target in the config"),
				logging.String(logging.FieldImpact, "affected days or relocations may fail"),
			)
		}
	}
	blocking := preflight.Blocking(results)
	if len(blocking) == 0 {
		return nil
	}
	parts := make([]string, 0, len(blocking))
	for _, r := range blocking {
		parts = append(parts, r.Name+": "+r.Detail)
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(parts, "; "))
}

func printRunResult(out io.Writer, res orchestrator.Result, opts orchestrator.RunOptions) {
	if n := len(res.Window); n > 0 {
		fmt.Fprintf(out, "Window: %s .. %s (%d days)\n", res.Window[0], res.Window[n-1], n)
	}
	for _, d := range res.Days {
		line := fmt.Sprintf("  %s  %-7s", d.Day, d.Status)
		if d.Err != nil {
			line += "  " + d.Err.Error()
		}
		fmt.Fprintln(out, line)
		if err := relocate.Err(d.Relocations); err != nil {
			fmt.Fprintf(out, "    relocation failed: %s\n", strings.ReplaceAll(err.Error(), "\n", "; "))
		}
	}
	if res.Deferred > 0 {
		fmt.Fprintf(out, "Deferred %d day(s) to the next run\n", res.Deferred)
	}
	if opts.Test {
		fmt.Fprintf(out, "Test output: %s\n", testTargetDir)
	}
	fmt.Fprintln(out, orchestrator.Describe(res))
}
