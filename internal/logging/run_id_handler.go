package logging

import (
	"context"
	"log/slog"
)

// runIDHandler stamps every record with the orchestrator run identifier unless
// the record already carries one.
type runIDHandler struct {
	base  slog.Handler
	runID string
	fixed bool
}

func newRunIDHandler(base slog.Handler, runID string) slog.Handler {
	if base == nil {
		return NoopHandler{}
	}
	return &runIDHandler{base: base, runID: runID}
}

func (h *runIDHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *runIDHandler) Handle(ctx context.Context, record slog.Record) error {
	if !h.fixed {
		present := false
		record.Attrs(func(attr slog.Attr) bool {
			if attr.Key == FieldRunID {
				present = true
				return false
			}
			return true
		})
		if !present {
			record.AddAttrs(slog.String(FieldRunID, h.runID))
		}
	}
	return h.base.Handle(ctx, record)
}

func (h *runIDHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &runIDHandler{
		base:  h.base.WithAttrs(attrs),
		runID: h.runID,
		fixed: h.fixed || hasAttrKey(attrs, FieldRunID),
	}
}

func (h *runIDHandler) WithGroup(name string) slog.Handler {
	return &runIDHandler{
		base:  h.base.WithGroup(name),
		runID: h.runID,
		fixed: h.fixed,
	}
}
