package reporting

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-allure/types"
)

// RuntimeError represents an operational error that should lead to exit code 2,
// such as an unreadable results directory
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// TestFailureError reports that the summarised results contain failed or broken tests (exit code 1)
type TestFailureError struct {
	Failed int
	Broken int
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %d failed, %d broken", e.Failed, e.Broken)
}

// NewTestFailureError creates a TestFailureError from a summary
func NewTestFailureError(summary *Summary) *TestFailureError {
	return &TestFailureError{Failed: summary.Count(types.StatusFailed), Broken: summary.Count(types.StatusBroken)}
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}
