package types

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/acarl005/stripansi"
)

// Status represents the outcome of an executable item
type Status string

const (
	StatusNone    Status = ""
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusBroken  Status = "broken"
	StatusSkipped Status = "skipped"
)

// Stage represents how far an entity has progressed through its lifecycle
type Stage string

const (
	StageNone      Stage = ""
	StageScheduled Stage = "scheduled"
	StageRunning   Stage = "running"
	StageFinished  Stage = "finished"
)

// Rank orders stages so that transitions can be checked for monotonicity.
// Unknown stages rank below StageNone.
func (s Stage) Rank() int {
	switch s {
	case StageNone:
		return 0
	case StageScheduled:
		return 1
	case StageRunning:
		return 2
	case StageFinished:
		return 3
	default:
		return -1
	}
}

// CanAdvanceTo reports whether moving from s to next moves the stage strictly forward
func (s Stage) CanAdvanceTo(next Stage) bool {
	return next.Rank() > s.Rank()
}

// StatusDetails carries the message and trace attached to a non-passing status
type StatusDetails struct {
	Known   bool   `json:"known,omitempty"`
	Muted   bool   `json:"muted,omitempty"`
	Flaky   bool   `json:"flaky,omitempty"`
	Message string `json:"message,omitempty"`
	Trace   string `json:"trace,omitempty"`
}

// NewStatusDetails builds status details from an error.
// ANSI escape sequences are stripped since test output is frequently colored.
func NewStatusDetails(err error) *StatusDetails {
	if err == nil {
		return nil
	}
	return &StatusDetails{
		Message: stripansi.Strip(err.Error()),
		Trace:   errorChain(err),
	}
}

// errorChain renders the unwrap chain of err, one error per line
func errorChain(err error) string {
	var lines []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		lines = append(lines, fmt.Sprintf("%T: %s", e, stripansi.Strip(e.Error())))
	}
	if len(lines) <= 1 {
		return ""
	}
	return strings.Join(lines, "\n")
}

// DetermineStatus maps an error to a result status.
// A nil error passes. Errors whose dynamic type (as printed by %T) is listed in
// failTypes, anywhere in the unwrap chain, are failures; everything else is broken.
func DetermineStatus(err error, failTypes []string) Status {
	if err == nil {
		return StatusPassed
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if slices.Contains(failTypes, fmt.Sprintf("%T", e)) {
			return StatusFailed
		}
	}
	return StatusBroken
}
