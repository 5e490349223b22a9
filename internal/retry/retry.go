// Package retry decides whether a processing day may be attempted again.
package retry

import (
	"fmt"
	"time"

	"dayrun/internal/day"
	"dayrun/internal/state"
)

// Policy gates retries of failed days. Both fields zero selects force mode:
// every failed day is eligible on every run.
type Policy struct {
	MaxAgeDays   int
	IntervalDays int
}

// Force reports whether the policy ignores both gates.
func (p Policy) Force() bool {
	return p.MaxAgeDays == 0 && p.IntervalDays == 0
}

// Decision explains an eligibility verdict for logging.
type Decision struct {
	Eligible bool
	Reason   string
}

// Result renders the verdict for decision logs.
func (d Decision) Result() string {
	if d.Eligible {
		return "run"
	}
	return "skip"
}

// Eligible reports whether rec may run today under p.
func Eligible(rec state.Record, today time.Time, p Policy) bool {
	return Decide(rec, today, p).Eligible
}

// Decide evaluates rec against p. Ages and intervals are counted in whole UTC
// calendar days, so a run at 00:05 retries a day that failed at 23:55 the
// previous evening when the interval is one day.
func Decide(rec state.Record, today time.Time, p Policy) Decision {
	switch rec.Status {
	case state.StatusPending, "":
		return Decision{Eligible: true, Reason: "pending"}
	case state.StatusSuccess:
		return Decision{Eligible: false, Reason: "already succeeded"}
	case state.StatusFailed, state.StatusRunning:
		// A running record seen here belongs to an attempt that never finished.
	default:
		return Decision{Eligible: false, Reason: fmt.Sprintf("unknown status %q", rec.Status)}
	}

	if p.Force() {
		return Decision{Eligible: true, Reason: "force retry"}
	}

	current := day.FromTime(today)
	age := current.Sub(rec.Day)
	if age > p.MaxAgeDays {
		return Decision{Eligible: false, Reason: fmt.Sprintf("failed day is %d days old, retry_max_age_days is %d", age, p.MaxAgeDays)}
	}

	if !rec.LastAttempt.IsZero() {
		since := current.Sub(day.FromTime(rec.LastAttempt))
		if since < p.IntervalDays {
			return Decision{Eligible: false, Reason: fmt.Sprintf("last attempt %d days ago, retry_interval_days is %d", since, p.IntervalDays)}
		}
	}
	return Decision{Eligible: true, Reason: "retry due"}
}
