package relocate

import (
	"fmt"
	"strings"

	"dayrun/internal/state"
)

// Trigger selects the day outcomes a rule applies to.
type Trigger string

const (
	TriggerAlways  Trigger = "always"
	TriggerSuccess Trigger = "success"
	TriggerFailure Trigger = "failure"
)

// ParseTrigger accepts always, success or failure (case-insensitive).
func ParseTrigger(value string) (Trigger, error) {
	switch t := Trigger(strings.ToLower(strings.TrimSpace(value))); t {
	case TriggerAlways, TriggerSuccess, TriggerFailure:
		return t, nil
	default:
		return "", fmt.Errorf("unknown relocation trigger %q", value)
	}
}

// Matches reports whether a day that ended in status should be relocated.
func (t Trigger) Matches(status state.Status) bool {
	switch t {
	case TriggerAlways:
		return true
	case TriggerSuccess:
		return status == state.StatusSuccess
	case TriggerFailure:
		return status == state.StatusFailed
	default:
		return false
	}
}
