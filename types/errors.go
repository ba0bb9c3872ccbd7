package types

import (
	"errors"
	"fmt"
)

// ArgumentError is returned when a required argument is nil
type ArgumentError struct {
	Name string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("argument %s cannot be nil", e.Name)
}

// NewArgumentError creates a new ArgumentError
func NewArgumentError(name string) *ArgumentError {
	return &ArgumentError{Name: name}
}

// IsArgumentError checks if the error is or wraps an ArgumentError
func IsArgumentError(err error) bool {
	var argErr *ArgumentError
	return err != nil && errors.As(err, &argErr)
}

// InvalidStateError reports an operation that does not fit the current nesting,
// e.g. stopping a step when none is active. It indicates a caller that
// mis-models the execution order of its test framework.
type InvalidStateError struct {
	Message string
}

func (e *InvalidStateError) Error() string {
	return e.Message
}

// NewInvalidStateError creates a new InvalidStateError
func NewInvalidStateError(message string) *InvalidStateError {
	return &InvalidStateError{Message: message}
}

// IsInvalidStateError checks if the error is or wraps an InvalidStateError
func IsInvalidStateError(err error) bool {
	var stateErr *InvalidStateError
	return err != nil && errors.As(err, &stateErr)
}

// NotFoundError is returned when an entity id is not tracked.
// Written is set when the id existed but its entity was already handed to the writer.
type NotFoundError struct {
	ID      string
	Written bool
}

func (e *NotFoundError) Error() string {
	if e.Written {
		return fmt.Sprintf("entity %s has already been written", e.ID)
	}
	return fmt.Sprintf("entity %s not found", e.ID)
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(id string, written bool) *NotFoundError {
	return &NotFoundError{ID: id, Written: written}
}

// IsNotFoundError checks if the error is or wraps a NotFoundError
func IsNotFoundError(err error) bool {
	var notFound *NotFoundError
	return err != nil && errors.As(err, &notFound)
}
