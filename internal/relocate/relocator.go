package relocate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"dayrun/internal/config"
	"dayrun/internal/day"
	"dayrun/internal/logging"
	"dayrun/internal/services"
	"dayrun/internal/state"
)

// Rule relocates the working directory to Target when Trigger matches.
type Rule struct {
	Name    string
	Trigger Trigger
	Target  Target
}

// Result reports one rule application.
type Result struct {
	Rule        string
	Trigger     Trigger
	Target      string
	Destination string
	Err         error
}

// Relocator applies rules after a day finishes.
type Relocator struct {
	rules  []Rule
	move   bool
	logger *slog.Logger
}

// New constructs a relocator. With move set the working directory is removed
// once every matching rule succeeded.
func New(rules []Rule, move bool, logger *slog.Logger) *Relocator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Relocator{
		rules:  append([]Rule(nil), rules...),
		move:   move,
		logger: logging.NewComponentLogger(logger, "relocate"),
	}
}

// FromConfig builds the rules for target_directory (always), pcf_copy_dir
// (success) and pcf_fail_copy_dir (failure). Empty settings add no rule.
func FromConfig(cfg *config.Config, logger *slog.Logger) (*Relocator, error) {
	if cfg == nil {
		return New(nil, false, logger), nil
	}
	opts := TargetOptions{BaseDirectory: cfg.Paths.BaseDirectory, ObjectStore: cfg.Output.ObjectStore}
	settings := []struct {
		name    string
		trigger Trigger
		value   string
	}{
		{"target_directory", TriggerAlways, cfg.Output.TargetDirectory},
		{"pcf_copy_dir", TriggerSuccess, cfg.Output.PCFCopyDir},
		{"pcf_fail_copy_dir", TriggerFailure, cfg.Output.PCFFailCopyDir},
	}
	var rules []Rule
	for _, s := range settings {
		if s.value == "" {
			continue
		}
		target, err := ParseTarget(s.value, opts)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "relocate", s.name, "invalid target", err)
		}
		rules = append(rules, Rule{Name: s.name, Trigger: s.trigger, Target: target})
	}
	return New(rules, cfg.Output.Move, logger), nil
}

// Rules returns the configured rules.
func (r *Relocator) Rules() []Rule { return append([]Rule(nil), r.rules...) }

// Apply places workDir for every rule whose trigger matches status. Errors are
// logged and returned in the results; they never change the day's status.
func (r *Relocator) Apply(ctx context.Context, d day.Day, workDir string, status state.Status) []Result {
	logger := logging.WithContext(ctx, r.logger).With(logging.String(logging.FieldDay, d.String()))
	if len(r.rules) == 0 {
		return nil
	}
	info, err := os.Stat(workDir)
	if err != nil || !info.IsDir() {
		logger.Debug("no working directory to relocate", logging.String("work_dir", workDir))
		return nil
	}

	var results []Result
	for _, rule := range r.rules {
		if !rule.Trigger.Matches(status) {
			continue
		}
		res := Result{Rule: rule.Name, Trigger: rule.Trigger, Target: rule.Target.String()}
		dest, err := rule.Target.Place(ctx, workDir, d)
		if err != nil {
			res.Err = services.Wrap(services.ErrRelocation, "relocate", rule.Name, fmt.Sprintf("place %s", rule.Target), err)
			logging.WarnWithContext(logger, "relocation failed", "relocation_failed",
				logging.String("rule", rule.Name),
				logging.String("target", rule.Target.String()),
				logging.Error(res.Err),
				logging.String(logging.FieldErrorHint, "check destination permissions and free space"),
				logging.String(logging.FieldImpact, "day status unchanged; output remains in the working directory"),
			)
		} else {
			res.Destination = dest
			logger.Info("output relocated",
				logging.String("rule", rule.Name),
				logging.String("destination", dest),
			)
		}
		results = append(results, res)
	}

	if r.move && len(results) > 0 && Succeeded(results) {
		if err := os.RemoveAll(workDir); err != nil {
			logging.WarnWithContext(logger, "failed to remove relocated working directory", "relocation_cleanup_failed",
				logging.String("work_dir", workDir),
				logging.Error(err),
			)
		} else {
			logger.Debug("working directory removed after move", logging.String("work_dir", workDir))
		}
	}
	return results
}

// Succeeded reports whether every result completed without error.
func Succeeded(results []Result) bool {
	for _, res := range results {
		if res.Err != nil {
			return false
		}
	}
	return true
}

// Err joins the errors of failed results.
func Err(results []Result) error {
	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return errors.Join(errs...)
}
