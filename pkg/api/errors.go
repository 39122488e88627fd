package api

import (
	"errors"
	"fmt"
)

// Error names written to ErrorDetail.Error by the engine itself.
const (
	ErrNameTaskFailed        = "States.TaskFailed"
	ErrNameNoChoiceMatched   = "States.NoChoiceMatched"
	ErrNameTimeout           = "States.Timeout"
	ErrNamePollLimitExceeded = "States.PollLimitExceeded"
	ErrNameRuntime           = "States.Runtime"
	ErrNameCancelled         = "States.Cancelled"
)

// Build-time graph errors. Compile wraps them in *BuildError.
var (
	ErrEmptyChain            = errors.New("chain has no steps")
	ErrEmptyStepName         = errors.New("step name is required")
	ErrDuplicateStep         = errors.New("step name already used by a different step")
	ErrUnknownSuccessor      = errors.New("successor references an unknown step")
	ErrMissingTarget         = errors.New("task has no invocation target")
	ErrStepAfterTerminal     = errors.New("step follows a step that does not continue the chain")
	ErrEmptyChoice           = errors.New("choice has no branches")
	ErrNonExhaustiveChoice   = errors.New("choice is not exhaustive and has no default")
	ErrUnknownVariant        = errors.New("choice routes a value outside its declared variants")
	ErrMissingFailureTarget  = errors.New("map or parallel step has no failure target")
	ErrInvalidConcurrency    = errors.New("map max concurrency must not be negative")
	ErrMissingItems          = errors.New("map step has no items path or iterator")
	ErrEmptyParallel         = errors.New("parallel step has no branches")
	ErrUnreachableStep       = errors.New("step is unreachable from the entry point")
	ErrUnguardedCycle        = errors.New("cycle does not pass through a wait step")
	ErrConflictingWrites     = errors.New("parallel branches write the same field")
	ErrUnsatisfiedRead       = errors.New("step reads a field no upstream step writes")
	ErrInvalidStep           = errors.New("step is malformed")
	ErrJourneyNotFound       = errors.New("journey not found")
	ErrJourneyAlreadyDefined = errors.New("journey already registered")
	ErrDefinitionMismatch    = errors.New("journey definition mismatch")
	ErrUnknownTarget         = errors.New("unknown invocation target")
	ErrExecutionFailed       = errors.New("execution failed")
)

// BuildError reports a graph defect found while compiling a journey.
type BuildError struct {
	Journey string
	Step    string
	Err     error
}

func (e *BuildError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("journey %q: %v", e.Journey, e.Err)
	}
	return fmt.Sprintf("journey %q: step %q: %v", e.Journey, e.Step, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// UnknownTargetError is returned by Targets when no collaborator is
// registered for a target.
type UnknownTargetError struct {
	Target string
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("no collaborator registered for target %q", e.Target)
}

func (e *UnknownTargetError) Unwrap() error { return ErrUnknownTarget }

// TaskError lets a collaborator name its failure. The name ends up in
// ErrorDetail.Error; plain errors are reported as States.TaskFailed.
type TaskError struct {
	Name string
	Err  error
}

// NewTaskError wraps err under the given error name.
func NewTaskError(name string, err error) *TaskError {
	return &TaskError{Name: name, Err: err}
}

func (e *TaskError) Error() string {
	if e.Err == nil {
		return e.Name
	}
	return e.Name + ": " + e.Err.Error()
}

func (e *TaskError) Unwrap() error { return e.Err }

// ExecutionError is returned by Engine.Run when an execution ends in a
// failure terminal or with an unrecovered failure.
type ExecutionError struct {
	Journey string
	Step    string
	Detail  ErrorDetail
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("journey %q failed at %q: %s: %s", e.Journey, e.Step, e.Detail.Error, e.Detail.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Is makes every ExecutionError match ErrExecutionFailed.
func (e *ExecutionError) Is(target error) bool { return target == ErrExecutionFailed }

// ErrorName returns the name a failure is reported under.
func ErrorName(err error) string {
	var te *TaskError
	if errors.As(err, &te) && te.Name != "" {
		return te.Name
	}
	return ErrNameTaskFailed
}
