package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	ErrSequenceNotFound     = errors.New("sequence not found")
	ErrTriggerNotFound      = errors.New("trigger not found")
	ErrTriggerEventNotFound = errors.New("trigger event not found")
	ErrRunNotFound          = errors.New("workflow run not found")
	ErrStepNotFound         = errors.New("workflow step not found")

	// ErrEventTerminal indicates a transition was attempted on an event that already left received.
	ErrEventTerminal = errors.New("trigger event already in a terminal state")

	// ErrVersionConflict indicates a step was changed by another writer since it was read.
	ErrVersionConflict = errors.New("version conflict")

	ErrInvalidID = errors.New("invalid id")
)

// RecordError wraps a repository failure with the operation and record it concerned.
type RecordError struct {
	Op     string // Operation being performed (e.g., "GetByID", "Transition")
	Entity string // Record kind (e.g., "trigger", "step")
	ID     string
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func (e *RecordError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRecordError creates a new record error with context.
func NewRecordError(op, entity, id string, err error) *RecordError {
	return &RecordError{Op: op, Entity: entity, ID: id, Err: err}
}

// IsNotFound checks if an error indicates any record was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSequenceNotFound) ||
		errors.Is(err, ErrTriggerNotFound) ||
		errors.Is(err, ErrTriggerEventNotFound) ||
		errors.Is(err, ErrRunNotFound) ||
		errors.Is(err, ErrStepNotFound)
}

// IsEventTerminal checks if an error indicates a rejected event transition.
func IsEventTerminal(err error) bool {
	return errors.Is(err, ErrEventTerminal)
}

// IsVersionConflict checks if an error indicates a stale step write.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
