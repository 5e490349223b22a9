package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks missing or invalid configuration. Fatal before any day runs.
	ErrConfiguration = errors.New("configuration error")
	// ErrAlreadyRunning marks run lock contention.
	ErrAlreadyRunning = errors.New("already running")
	// ErrInvalidWindow marks date bounds that resolve to start > end.
	ErrInvalidWindow = errors.New("invalid window")
	// ErrHookFailure marks a pre-run or post-run hook that failed to spawn or exited non-zero.
	ErrHookFailure = errors.New("hook failure")
	// ErrPayloadFailure marks a failed per-day unit of work.
	ErrPayloadFailure = errors.New("payload failure")
	// ErrRelocation marks a failed output relocation. Never fatal.
	ErrRelocation = errors.New("relocation error")
	// ErrPersistence marks a failure to durably record day state.
	ErrPersistence = errors.New("persistence error")
	// ErrHaltUnsupported is returned by halt/restart when no stop file is configured.
	ErrHaltUnsupported = fmt.Errorf("%w: stop_file is not configured; halting is unsupported", ErrConfiguration)
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrPayloadFailure
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns the taxonomy name for err, used in logs and persisted records.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrAlreadyRunning):
		return "already_running"
	case errors.Is(err, ErrInvalidWindow):
		return "invalid_window"
	case errors.Is(err, ErrHookFailure):
		return "hook"
	case errors.Is(err, ErrPayloadFailure):
		return "payload"
	case errors.Is(err, ErrRelocation):
		return "relocation"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "unknown"
	}
}

// Fatal reports whether err aborts the whole run rather than a single day.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrHookFailure) &&
		!errors.Is(err, ErrPayloadFailure) &&
		!errors.Is(err, ErrRelocation)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "orchestrator failure"
	}
	return strings.Join(parts, ": ")
}
