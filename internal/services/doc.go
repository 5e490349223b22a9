// Package services defines the error taxonomy and context helpers shared by
// the orchestrator components.
//
// Key responsibilities:
//   - Sentinel error markers (configuration, lock contention, window, hook,
//     payload, relocation, persistence) plus the Wrap helper so callers can
//     classify failures with errors.Is while keeping the underlying cause.
//   - Context helpers that stamp run identifiers, processing days, and phase
//     names for structured logging.
//
// Use these helpers when adding components so failures surface with the same
// shape at the CLI boundary and in per-day records.
package services
