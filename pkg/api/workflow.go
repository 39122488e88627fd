package api

import (
	"context"
	"math"
	"time"
)

// Status represents the lifecycle state of an execution.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// StepKind identifies the kind of a workflow node.
type StepKind string

const (
	KindTask     StepKind = "Task"
	KindWait     StepKind = "Wait"
	KindChoice   StepKind = "Choice"
	KindMap      StepKind = "Map"
	KindParallel StepKind = "Parallel"
	KindSucceed  StepKind = "Succeed"
	KindFail     StepKind = "Fail"
	KindRef      StepKind = "Ref"
)

// Terminal reports whether a node of this kind ends its scope.
func (k StepKind) Terminal() bool {
	return k == KindSucceed || k == KindFail
}

// TaskFunc is the body of an external collaborator. It receives the selected
// input and returns the fragment the engine writes at the task's result path.
type TaskFunc func(ctx context.Context, input Payload) (any, error)

// Invoker calls the external collaborator named by target.
type Invoker interface {
	Invoke(ctx context.Context, target string, input Payload) (any, error)
}

// TargetResolver is optionally implemented by an Invoker that can tell up
// front whether it serves a target. Engines use it to reject definitions that
// reference unknown collaborators at registration time.
type TargetResolver interface {
	HasTarget(target string) bool
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, target string, input Payload) (any, error)

func (f InvokerFunc) Invoke(ctx context.Context, target string, input Payload) (any, error) {
	return f(ctx, target, input)
}

// Targets is an Invoker backed by a map of target name to TaskFunc.
type Targets map[string]TaskFunc

var (
	_ Invoker        = Targets(nil)
	_ TargetResolver = Targets(nil)
)

func (t Targets) Invoke(ctx context.Context, target string, input Payload) (any, error) {
	fn, ok := t[target]
	if !ok || fn == nil {
		return nil, &UnknownTargetError{Target: target}
	}
	return fn(ctx, input)
}

func (t Targets) HasTarget(target string) bool {
	fn, ok := t[target]
	return ok && fn != nil
}

// RetryPolicy controls how a task is re-invoked when it fails.
//
// MaxAttempts counts retries after the first invocation:
//
//	MaxAttempts = 0 => the task runs once
//	MaxAttempts = 1 => initial call + 1 retry
//
// Interval is the delay before the first retry. Each following delay is
// multiplied by BackoffRate (values <= 0 mean 1.0) and capped by MaxDelay when
// it is positive.
type RetryPolicy struct {
	MaxAttempts int           `json:"maxAttempts" yaml:"maxAttempts"`
	Interval    time.Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
	BackoffRate float64       `json:"backoffRate,omitempty" yaml:"backoffRate,omitempty"`
	MaxDelay    time.Duration `json:"maxDelay,omitempty" yaml:"maxDelay,omitempty"`
}

// Delay returns the wait before the given retry (1-based). Without a
// MaxDelay the result saturates at the largest Duration instead of wrapping.
func (r RetryPolicy) Delay(retry int) time.Duration {
	if r.Interval <= 0 || retry <= 0 {
		return 0
	}
	rate := r.BackoffRate
	if rate <= 0 {
		rate = 1.0
	}
	ceiling := time.Duration(math.MaxInt64)
	if r.MaxDelay > 0 {
		ceiling = r.MaxDelay
	}
	d := float64(r.Interval)
	for i := 1; i < retry; i++ {
		d *= rate
		if d >= float64(ceiling) {
			return ceiling
		}
	}
	if d >= float64(ceiling) {
		return ceiling
	}
	return time.Duration(d)
}

// TaskSpec describes a Task node.
type TaskSpec struct {
	// Target names the external collaborator; opaque to the engine.
	Target string
	// InputPath selects the part of the payload handed to the collaborator.
	InputPath string
	// ResultPath is where the collaborator's fragment is written. Empty means
	// the fragment is discarded.
	ResultPath string
	// Reads lists payload fields the task expects an upstream step to have
	// written (or the journey input to carry).
	Reads []string
	Retry *RetryPolicy
	// Catch is taken once retries are exhausted; the failure detail is stored
	// under ErrorField.
	Catch *Chain
}

// Writes returns the top-level payload fields the task may write.
func (t *TaskSpec) Writes() []string {
	var out []string
	if t.ResultPath != "" {
		out = append(out, TopLevel(t.ResultPath))
	}
	if t.Catch != nil {
		out = append(out, ErrorField)
	}
	return out
}

// WaitSpec describes a Wait node.
type WaitSpec struct {
	Duration time.Duration
	// MaxVisits bounds how often the node may be entered in one scope run.
	// Zero means unbounded.
	MaxVisits int
}

// ChoiceRule routes to Chain when Condition matches.
type ChoiceRule struct {
	Condition Condition
	Chain     Chain
}

// ChoiceSpec describes a Choice node.
type ChoiceSpec struct {
	Rules     []ChoiceRule
	Otherwise *Chain
	// Path and Variants are set by closed-set routing: every variant must be
	// matched by a StringEquals rule on Path unless Otherwise is set.
	Path     string
	Variants []string
	// Undeclared holds route keys that are not among Variants. Compile
	// rejects a Choice with any.
	Undeclared []string
}

// MapSpec describes a Map node.
type MapSpec struct {
	ItemsPath string
	// ItemField is the field each item is stored under in the iteration
	// payload.
	ItemField string
	// Carry lists parent payload paths copied into every iteration.
	Carry          []string
	MaxConcurrency int
	// ResultPath receives the ordered list of iteration outputs. Empty
	// discards them.
	ResultPath string
	Iterator   Chain
	Success    *Chain
	Failure    *Chain
}

// ParallelSpec describes a Parallel node.
type ParallelSpec struct {
	Branches []Chain
	// ResultPath receives the ordered list of branch outputs. Empty means
	// only the fields each branch wrote are merged back.
	ResultPath string
	Success    *Chain
	Failure    *Chain
}

// FailSpec carries the fixed error/cause pair of a Fail node.
type FailSpec struct {
	Error string
	Cause string
}

// Step is one workflow node. Exactly one of the kind-specific specs is set,
// matching Kind. Steps are immutable once built.
type Step struct {
	Name     string
	Kind     StepKind
	Task     *TaskSpec
	Wait     *WaitSpec
	Choice   *ChoiceSpec
	Map      *MapSpec
	Parallel *ParallelSpec
	Fail     *FailSpec
	// Ref is the name of the node a Ref step points at.
	Ref string
}

// Stepper is implemented by Step and by the fluent builders that produce one.
type Stepper interface {
	Step() Step
}

// Step returns s itself.
func (s Step) Step() Step { return s }

// Chain is an ordered, immutable sequence of steps with a single entry.
// Every builder method returns a new Chain; no backing array is shared.
type Chain struct {
	steps []Step
}

// Start begins a chain with s.
func Start(s Stepper) Chain {
	return Chain{steps: []Step{s.Step()}}
}

// Next returns a new chain with s appended.
func (c Chain) Next(s Stepper) Chain {
	steps := make([]Step, len(c.steps), len(c.steps)+1)
	copy(steps, c.steps)
	return Chain{steps: append(steps, s.Step())}
}

// Then returns a new chain with every step of other appended.
func (c Chain) Then(other Chain) Chain {
	steps := make([]Step, 0, len(c.steps)+len(other.steps))
	steps = append(steps, c.steps...)
	return Chain{steps: append(steps, other.steps...)}
}

// Steps returns a copy of the chain's steps.
func (c Chain) Steps() []Step {
	out := make([]Step, len(c.steps))
	copy(out, c.steps)
	return out
}

// Len returns the number of steps.
func (c Chain) Len() int { return len(c.steps) }

// IsZero reports whether the chain has no steps.
func (c Chain) IsZero() bool { return len(c.steps) == 0 }

// Entry returns the name of the first step, or "" for an empty chain.
func (c Chain) Entry() string {
	if len(c.steps) == 0 {
		return ""
	}
	if c.steps[0].Kind == KindRef {
		return c.steps[0].Ref
	}
	return c.steps[0].Name
}

// ErrorDetail is the failure information stored under ErrorField and on a
// failed Execution.
type ErrorDetail struct {
	Error string `json:"Error" yaml:"Error"`
	Cause string `json:"Cause" yaml:"Cause"`
}

// Execution holds the result of one run of a journey.
type Execution struct {
	ID      string
	Journey string
	Version string
	Status  Status
	Input   Payload
	Output  Payload
	// Error is set when Status is StatusFailed.
	Error *ErrorDetail

	StartedAt  time.Time
	FinishedAt time.Time

	// History is the ordered list of events recorded during the run.
	History []Event
}
