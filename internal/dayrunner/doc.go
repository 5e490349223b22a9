// Package dayrunner executes one processing day: pre-run hook, payload,
// post-run hook, with every state transition persisted before the next step.
//
// A failure in any step marks the day failed and skips the remaining steps.
// Only a persistence failure is returned as an error, because once a
// transition cannot be recorded the run can no longer guarantee that a
// finished day is never repeated or lost.
package dayrunner
