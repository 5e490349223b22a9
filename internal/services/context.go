package services

import "context"

type contextKey string

const (
	runIDKey contextKey = "run_id"
	dayKey   contextKey = "day"
	phaseKey contextKey = "phase"
)

// WithRunID annotates context with the orchestrator run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithDay annotates context with the processing day label (YYYY-DDD).
func WithDay(ctx context.Context, day string) context.Context {
	if day == "" {
		return ctx
	}
	return context.WithValue(ctx, dayKey, day)
}

// DayFromContext returns the processing day label if present.
func DayFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(dayKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithPhase annotates context with the day runner phase (pre, payload, post, relocate).
func WithPhase(ctx context.Context, phase string) context.Context {
	if phase == "" {
		return ctx
	}
	return context.WithValue(ctx, phaseKey, phase)
}

// PhaseFromContext returns the phase name if present.
func PhaseFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(phaseKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
