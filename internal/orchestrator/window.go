package orchestrator

import (
	"context"

	"dayrun/internal/config"
	"dayrun/internal/day"
	"dayrun/internal/logging"
	"dayrun/internal/retry"
	"dayrun/internal/services"
	"dayrun/internal/state"
	"dayrun/internal/window"
)

// resolveWindow combines CLI overrides, configured bounds and the start
// policy into a window request. With a cap and a fixed start, the start moves
// to the first day the retry policy would run so settled days never use up
// the cap and the backlog drains across runs.
func (o *Orchestrator) resolveWindow(ctx context.Context, opts RunOptions, policy retry.Policy) (window.Result, error) {
	today := day.FromTime(o.now())
	req := window.Request{
		Start:   opts.Start,
		End:     opts.End,
		Single:  opts.Day,
		MaxDays: o.cfg.Window.MaxDaysPerRun,
	}
	if opts.MaxDays != nil {
		req.MaxDays = *opts.MaxDays
	}

	if req.Start == nil && o.cfg.Window.StartDate != "" {
		d, err := day.Parse(o.cfg.Window.StartDate, today)
		if err != nil {
			return window.Result{}, err
		}
		req.Start = &d
	}
	end := today.AddDays(-1)
	if req.End == nil && o.cfg.Window.EndDate != "" {
		d, err := day.Parse(o.cfg.Window.EndDate, today)
		if err != nil {
			return window.Result{}, err
		}
		end = d
	}
	if req.End != nil {
		end = *req.End
	}
	req.DefaultEnd = func() (day.Day, bool) { return end, true }

	if req.Start != nil && req.Single == nil && req.MaxDays > 0 && req.Start.Valid() && end.Valid() && !req.Start.After(end) {
		start := *req.Start
		first, ok, err := o.firstEligible(ctx, start, end, policy)
		if err != nil {
			return window.Result{}, err
		}
		if !ok {
			return window.Result{Start: start, End: end}, nil
		}
		if first.After(start) {
			logging.WithContext(ctx, o.logger).Debug("window start advanced past settled days",
				logging.String("configured_start", start.String()),
				logging.String("effective_start", first.String()),
			)
			req.Start = &first
		}
	}

	var lookupErr error
	req.DefaultStart = func() (day.Day, bool) {
		d, ok, err := o.defaultStart(ctx, today, end, policy)
		lookupErr = err
		return d, ok
	}

	res, err := window.ResolveWindow(req)
	if lookupErr != nil {
		return window.Result{}, lookupErr
	}
	return res, err
}

// defaultStart applies window.start_policy. earliest_eligible scans
// [today-lookback, end] for the first day the retry policy would run and
// reports ok=false when there is none.
func (o *Orchestrator) defaultStart(ctx context.Context, today, end day.Day, policy retry.Policy) (day.Day, bool, error) {
	from := today.AddDays(-o.cfg.Window.LookbackDays)
	switch o.cfg.Window.StartPolicy {
	case config.StartPolicyYesterday:
		return today.AddDays(-1), true, nil
	case config.StartPolicyLookback:
		return from, true, nil
	case config.StartPolicyEarliestEligible, "":
	default:
		return day.Day{}, false, services.Wrap(services.ErrConfiguration, "orchestrator", "window",
			"unknown window.start_policy "+o.cfg.Window.StartPolicy, nil)
	}
	return o.firstEligible(ctx, from, end, policy)
}

// firstEligible returns the first day in [from, end] that has no record or
// that the retry policy would run.
func (o *Orchestrator) firstEligible(ctx context.Context, from, end day.Day, policy retry.Policy) (day.Day, bool, error) {
	if from.After(end) {
		return day.Day{}, false, nil
	}

	records, err := o.store.List(ctx, state.Filter{From: from, To: end})
	if err != nil {
		return day.Day{}, false, err
	}
	known := make(map[day.Day]state.Record, len(records))
	for _, rec := range records {
		known[rec.Day] = rec
	}
	now := o.now()
	for d := from; !d.After(end); d = d.AddDays(1) {
		rec, ok := known[d]
		if !ok {
			return d, true, nil
		}
		if retry.Eligible(rec, now, policy) {
			return d, true, nil
		}
	}
	return day.Day{}, false, nil
}
