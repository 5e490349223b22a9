package logging

import (
	"context"
	"log/slog"

	"dayrun/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID is the standardized structured logging key for orchestrator run identifiers.
	FieldRunID = "run_id"
	// FieldDay is the standardized structured logging key for processing days (YYYY-DDD).
	FieldDay = "day"
	// FieldPhase is the standardized structured logging key for day runner phases.
	FieldPhase = "phase"
	// FieldEventType classifies a log line for filtering (e.g. day_failed, lock_overridden).
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for the consequence of a warning.
	FieldImpact = "impact"
	// FieldErrorKind carries the services.Kind taxonomy name of an error.
	FieldErrorKind = "error_kind"
	// FieldDecisionType is the standardized key for decision logging.
	FieldDecisionType = "decision_type"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if d, ok := services.DayFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldDay, d))
	}
	if phase, ok := services.PhaseFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPhase, phase))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
