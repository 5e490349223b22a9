package preflight

import (
	"context"
	"fmt"
	"time"

	"dayrun/internal/config"
	"dayrun/internal/day"
	"dayrun/internal/deps"
	"dayrun/internal/hooks"
	"dayrun/internal/relocate"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Warning marks checks whose failure does not block a run.
	Warning bool
}

// objectProbeTimeout bounds each object store reachability check.
const objectProbeTimeout = 10 * time.Second

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Working directory", day.StaticDir(cfg.Paths.WorkDirectory)),
	}
	results = append(results, CheckCommands(cfg)...)
	results = append(results, CheckRelocation(ctx, cfg)...)
	return results
}

// Blocking returns the failed checks that must stop a run.
func Blocking(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && !r.Warning {
			out = append(out, r)
		}
	}
	return out
}

// CheckCommands resolves the executables of the configured hooks and payload.
func CheckCommands(cfg *config.Config) []Result {
	var reqs []deps.Requirement
	for _, hook := range []struct{ name, value string }{
		{"Pre-run hook", cfg.Hooks.PrerunScript},
		{"Post-run hook", cfg.Hooks.PostrunScript},
	} {
		h := hooks.Parse(hook.value)
		if h.IsNone() {
			continue
		}
		reqs = append(reqs, deps.Requirement{Name: hook.name, CommandLine: h.CommandLine()})
	}
	reqs = append(reqs, deps.Requirement{Name: "Payload", CommandLine: cfg.Payload.Command})

	statuses := deps.CheckCommands(reqs)
	results := make([]Result, 0, len(statuses))
	for _, st := range statuses {
		detail := st.Command
		if st.Detail != "" {
			if detail != "" {
				detail += " "
			}
			if st.Available {
				detail += "(" + st.Detail + ")"
			} else {
				detail += "(error: " + st.Detail + ")"
			}
		}
		results = append(results, Result{Name: st.Name, Passed: st.Available, Detail: detail, Warning: true})
	}
	return results
}

// CheckRelocation checks that every relocation target can be written.
func CheckRelocation(ctx context.Context, cfg *config.Config) []Result {
	relocator, err := relocate.FromConfig(cfg, nil)
	if err != nil {
		return []Result{{Name: "Relocation targets", Detail: err.Error()}}
	}
	var results []Result
	for _, rule := range relocator.Rules() {
		name := "Relocation " + rule.Name
		switch target := rule.Target.(type) {
		case *relocate.ObjectTarget:
			results = append(results, checkObjectTarget(ctx, name, target))
		case interface{ Root() string }:
			r := CheckDirectoryAccess(name, target.Root())
			r.Warning = true
			results = append(results, r)
		default:
			results = append(results, Result{Name: name, Passed: true, Detail: rule.Target.String(), Warning: true})
		}
	}
	return results
}

func checkObjectTarget(ctx context.Context, name string, target *relocate.ObjectTarget) Result {
	probeCtx, cancel := context.WithTimeout(ctx, objectProbeTimeout)
	defer cancel()
	if err := target.Probe(probeCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", target, err), Warning: true}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (bucket reachable)", target), Warning: true}
}
