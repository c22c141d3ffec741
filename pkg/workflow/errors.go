package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrSequenceMissing  = errors.New("sequence not found")
	ErrSequenceInactive = errors.New("sequence is not active")
	ErrNoActions        = errors.New("sequence has no actions")
	ErrQueueFailed      = errors.New("run could not be queued")
	ErrRunClaimed       = errors.New("run is claimed by another worker")
	ErrActionMissing    = errors.New("action no longer exists")
)

// Step error codes stored on failed steps.
const (
	ErrorCodeIntegration    = "integration_error"
	ErrorCodeTimeout        = "timeout"
	ErrorCodeActionNotFound = "action_not_found"
	ErrorCodeTemplate       = "template_error"
)

// DispatchError reports why a trigger activation could not start a run.
type DispatchError struct {
	TriggerID  string
	SequenceID string
	Err        error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch of trigger %s to sequence %s: %v", e.TriggerID, e.SequenceID, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

func (e *DispatchError) Is(target error) bool {
	_, ok := target.(*DispatchError)

	return ok
}

// StepExecutionError is the terminal failure of a step after its retry budget.
type StepExecutionError struct {
	StepID    string
	Operation string
	Code      string
	Attempts  int
	Err       error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %s (%s) failed after %d attempt(s): %v", e.StepID, e.Operation, e.Attempts, e.Err)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Err
}

func (e *StepExecutionError) Is(target error) bool {
	_, ok := target.(*StepExecutionError)

	return ok
}

func IsDispatchError(err error) bool {
	var de *DispatchError

	return errors.As(err, &de)
}

func IsStepExecutionError(err error) bool {
	var se *StepExecutionError

	return errors.As(err, &se)
}
