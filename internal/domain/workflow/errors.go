package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrGuardFailed is returned when a guard condition fails
	ErrGuardFailed = errors.New("guard condition failed")
)

// Engine errors. Callers classify them with errors.Is.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrNoMatchingWorkflow   = errors.New("no matching workflow definition")
	ErrInstanceNotFound     = errors.New("workflow instance not found")
	ErrStepInstanceNotFound = errors.New("step instance not found")
	ErrStepAlreadyDecided   = errors.New("step instance already decided")
	ErrInstanceNotActive    = errors.New("workflow instance is not active")
	ErrStepNotCurrent       = errors.New("step instance does not belong to the current step")
	ErrConcurrentUpdate     = errors.New("workflow instance was modified concurrently")
	ErrNoAgentsResolved     = errors.New("no agents resolved for step")
)
