// Package logging assembles structured slog loggers and formatting helpers used
// across dayrun.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so day-runner code can tag log lines with
// the run identifier, the processing day, and the current phase. Each run
// writes its own log file alongside a dayrun.log pointer, and every processed
// day gets a dedicated log file that the payload output is also captured into.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// data with the same shape as the rest of the system.
package logging
