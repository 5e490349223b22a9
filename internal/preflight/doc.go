// Package preflight checks that a run can start: the state, log and working
// directories must be usable, and the configured commands and relocation
// targets should resolve.
//
// Directory checks block a run. Command and relocation checks are warnings:
// a missing executable only fails the days it would have run, and relocation
// failures never change a day's status.
//
// "dayrun run" calls RunAll before taking the lock; "dayrun status --checks"
// renders the same results.
package preflight
