// Package window resolves the ordered set of processing days for one run.
//
// Explicit bounds win over defaults, a single-day override wins over both,
// and the result is capped to MaxDays taking the earliest days first so a
// backlog drains across repeated invocations. Days beyond the cap are
// deferred to a later run, never dropped: the caller starts the next window
// at the first day still to be run.
package window

import (
	"fmt"

	"dayrun/internal/day"
	"dayrun/internal/services"
)

// DefaultFunc fills a missing bound. ok=false means there is nothing to
// process and yields an empty window rather than an error.
type DefaultFunc func() (d day.Day, ok bool)

// Request describes the inputs for one resolution.
type Request struct {
	Start        *day.Day
	End          *day.Day
	Single       *day.Day
	MaxDays      int
	DefaultStart DefaultFunc
	DefaultEnd   DefaultFunc
}

// Result is the resolved window plus the number of days deferred by the cap.
type Result struct {
	Start    day.Day
	End      day.Day
	Days     []day.Day
	Deferred int
}

// Empty reports whether no days were resolved.
func (r Result) Empty() bool { return len(r.Days) == 0 }

// Resolve returns the ordered days for req.
func Resolve(req Request) ([]day.Day, error) {
	res, err := ResolveWindow(req)
	if err != nil {
		return nil, err
	}
	return res.Days, nil
}

// ResolveWindow returns the ordered days for req along with bound and
// deferral details.
func ResolveWindow(req Request) (Result, error) {
	if req.Single != nil {
		d := *req.Single
		if !d.Valid() {
			return Result{}, invalidWindow(fmt.Sprintf("single day %v is not a valid calendar day", d))
		}
		return Result{Start: d, End: d, Days: []day.Day{d}}, nil
	}

	end, ok, err := bound(req.End, req.DefaultEnd, "end")
	if err != nil || !ok {
		return Result{}, err
	}
	start, ok, err := bound(req.Start, req.DefaultStart, "start")
	if err != nil || !ok {
		return Result{}, err
	}
	if start.After(end) {
		return Result{}, invalidWindow(fmt.Sprintf("start %s is after end %s", start, end))
	}

	span := end.Sub(start) + 1
	count := span
	if req.MaxDays > 0 && count > req.MaxDays {
		count = req.MaxDays
	}
	days := make([]day.Day, 0, count)
	for i := 0; i < count; i++ {
		days = append(days, start.AddDays(i))
	}
	return Result{Start: start, End: end, Days: days, Deferred: span - count}, nil
}

func bound(explicit *day.Day, fallback DefaultFunc, name string) (day.Day, bool, error) {
	if explicit != nil {
		if !explicit.Valid() {
			return day.Day{}, false, invalidWindow(fmt.Sprintf("%s %v is not a valid calendar day", name, *explicit))
		}
		return *explicit, true, nil
	}
	if fallback == nil {
		return day.Day{}, false, services.Wrap(services.ErrConfiguration, "window", "resolve",
			fmt.Sprintf("%s date not set and no default policy configured", name), nil)
	}
	d, ok := fallback()
	if !ok {
		return day.Day{}, false, nil
	}
	return d, true, nil
}

func invalidWindow(message string) error {
	return services.Wrap(services.ErrInvalidWindow, "window", "resolve", message, nil)
}
