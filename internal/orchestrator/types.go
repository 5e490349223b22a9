package orchestrator

import (
	"time"

	"dayrun/internal/day"
	"dayrun/internal/relocate"
	"dayrun/internal/state"
)

// State is the orchestrator phase.
type State string

const (
	StateIdle      State = "idle"
	StateLocked    State = "locked"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateStopped   State = "stopped"
	StateAborted   State = "aborted"
)

// RunOptions carries per-invocation overrides. Nil pointers fall back to
// configuration.
type RunOptions struct {
	Start   *day.Day
	End     *day.Day
	Day     *day.Day
	MaxDays *int
	// ForceRetry sets both retry gates to zero for this run.
	ForceRetry   bool
	OverrideLock bool
	// Test marks a single-day diagnostic run; Day must be set.
	Test  bool
	RunID string
	// OnLocked runs once the run lock is held (or overridden), before the
	// stop marker is checked and before any day is processed.
	OnLocked func()
}

// DayResult describes one processed day.
type DayResult struct {
	Day         day.Day
	Status      state.Status
	Err         error
	Phase       string
	Attempts    int
	WorkDir     string
	LogPath     string
	Started     time.Time
	Finished    time.Time
	Relocations []relocate.Result
	Relocated   bool
}

// Skip records a window day that was not attempted.
type Skip struct {
	Day    day.Day
	Status state.Status
	Reason string
}

// Result summarises a run.
type Result struct {
	State          State
	RunID          string
	Window         []day.Day
	Deferred       int
	Days           []DayResult
	Skipped        []Skip
	LockOverridden bool
	Reclaimed      int64
	Started        time.Time
	Finished       time.Time
}

// Counts tallies day outcomes.
type Counts struct {
	Success  int
	Failed   int
	Skipped  int
	Deferred int
}

// Counts tallies the run's day outcomes.
func (r Result) Counts() Counts {
	c := Counts{Skipped: len(r.Skipped), Deferred: r.Deferred}
	for _, d := range r.Days {
		switch d.Status {
		case state.StatusSuccess:
			c.Success++
		case state.StatusFailed:
			c.Failed++
		}
	}
	return c
}
