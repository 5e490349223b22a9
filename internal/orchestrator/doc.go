// Package orchestrator runs the configured window of processing days.
//
// A run moves through Idle, Locked and Running and ends Completed, Stopped or
// Aborted. It holds the run lock for its whole lifetime, resolves the day
// window, and for each day in ascending order consults the retry policy,
// runs the day, relocates its output and persists the outcome before moving
// on. The stop marker is honoured between days only. Per-day failures never
// end the run; configuration, lock, window and persistence failures do.
//
// The package logs through slog and returns a structured Result. It never
// writes to stdout; the CLI renders results.
package orchestrator
