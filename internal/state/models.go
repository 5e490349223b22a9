package state

import (
	"strings"
	"time"

	"dayrun/internal/day"
	"dayrun/internal/services"
)

// Status is the lifecycle state of a processing day.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

var allStatuses = []Status{StatusPending, StatusRunning, StatusSuccess, StatusFailed}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a string to Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether the status ends an attempt.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// InterruptedError is recorded on running records reclaimed after a crash.
const InterruptedError = "interrupted"

// Record is the persisted state of one processing day.
type Record struct {
	Day         day.Day
	Status      Status
	Attempts    int
	LastAttempt time.Time
	LastError   string
	ErrorKind   string
	RunID       string
	WorkDir     string
	LogPath     string
	Relocated   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewRecord returns the implicit pending record for d.
func NewRecord(d day.Day) Record {
	return Record{Day: d, Status: StatusPending}
}

// Begin moves the record into Running for a new attempt.
func (r *Record) Begin(now time.Time, runID string) {
	r.Status = StatusRunning
	r.Attempts++
	r.LastAttempt = now.UTC()
	r.LastError = ""
	r.ErrorKind = ""
	r.RunID = runID
	r.Relocated = false
}

// Finish records the terminal outcome of the current attempt.
func (r *Record) Finish(now time.Time, err error) {
	r.LastAttempt = now.UTC()
	if err != nil {
		r.Status = StatusFailed
		r.LastError = err.Error()
		r.ErrorKind = services.Kind(err)
		return
	}
	r.Status = StatusSuccess
	r.LastError = ""
	r.ErrorKind = ""
}

// Filter narrows List results. Zero values mean no restriction.
type Filter struct {
	Statuses []Status
	From     day.Day
	To       day.Day
	Limit    int
}

func (f Filter) matches(rec Record) bool {
	if !f.From.IsZero() && rec.Day.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && rec.Day.After(f.To) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, status := range f.Statuses {
		if rec.Status == status {
			return true
		}
	}
	return false
}
