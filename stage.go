package journeys

import (
	"errors"
	"time"

	"github.com/dataproduct/journeys/pkg/api"
)

// DefaultPollInterval is the wait between two readiness checks of
// PollUntilReady when Poll.Interval is zero.
const DefaultPollInterval = time.Minute

// Stage is one logical stage of a journey. SetupChain returns the stage's
// chain wired so that it continues with success and routes unrecovered
// failures to failure.
type Stage interface {
	SetupChain(failure, success Chain) Chain
}

// StageFunc adapts a function to Stage.
type StageFunc func(failure, success Chain) Chain

func (f StageFunc) SetupChain(failure, success Chain) Chain {
	return f(failure, success)
}

// Link folds stages into one chain. Stages are listed in runtime order and
// wired terminal-first: the last stage receives success, every earlier stage
// receives the chain built for the stages after it.
func Link(failure, success Chain, stages ...Stage) Chain {
	next := success
	for i := len(stages) - 1; i >= 0; i-- {
		next = stages[i].SetupChain(failure, next)
	}
	return next
}

// Assemble links stages between failure and success and compiles the result.
func Assemble(name string, failure, success Chain, stages []Stage, opts ...CompileOption) (*Definition, error) {
	return Compile(name, Link(failure, success, stages...), opts...)
}

// JourneyBuilder provides a fluent API for assembling a journey from stages:
//
//	def, err := journeys.New("visibility").
//	    Failure(journeys.Start(journeys.Fail("Job Failed", "JobFailed", "a step failed"))).
//	    Success(journeys.Start(journeys.Succeed("Job Succeeded"))).
//	    Stage(fetchInputs).
//	    Stage(assignTags).
//	    Build()
type JourneyBuilder struct {
	name     string
	failure  Chain
	success  Chain
	stages   []Stage
	opts     []CompileOption
	finished bool
}

// New creates a new journey builder with the given name.
func New(name string) *JourneyBuilder {
	return &JourneyBuilder{name: name}
}

// Name returns the journey name.
func (b *JourneyBuilder) Name() string {
	return b.name
}

// Failure sets the chain every stage routes unrecovered failures to.
func (b *JourneyBuilder) Failure(c Chain) *JourneyBuilder {
	b.failure = c
	return b
}

// Success sets the chain the last stage continues with.
func (b *JourneyBuilder) Success(c Chain) *JourneyBuilder {
	b.success = c
	b.finished = true
	return b
}

// Stage appends a stage. Stages run in the order they are added.
func (b *JourneyBuilder) Stage(s Stage) *JourneyBuilder {
	b.stages = append(b.stages, s)
	return b
}

// Version sets the version of the compiled definition.
func (b *JourneyBuilder) Version(v string) *JourneyBuilder {
	b.opts = append(b.opts, WithVersion(v))
	return b
}

// Inputs declares the fields the journey input carries.
func (b *JourneyBuilder) Inputs(fields ...string) *JourneyBuilder {
	b.opts = append(b.opts, WithInputs(fields...))
	return b
}

// Build assembles and compiles the journey.
func (b *JourneyBuilder) Build() (*Definition, error) {
	if !b.finished {
		return nil, &BuildError{Journey: b.name, Err: errors.New("journey has no success chain")}
	}
	return Assemble(b.name, b.failure, b.success, b.stages, b.opts...)
}

// Register builds the journey and registers it with the given engine.
func (b *JourneyBuilder) Register(eng Engine) error {
	def, err := b.Build()
	if err != nil {
		return err
	}
	return eng.Register(def)
}

// MustRegister is like Register but panics on error.
// Useful for initialization in main().
func (b *JourneyBuilder) MustRegister(eng Engine) {
	if err := b.Register(eng); err != nil {
		panic(err)
	}
}

// Poll describes a poll-until-ready loop: Execute starts an external action,
// Check reads its status and Ready decides whether the loop is done.
type Poll struct {
	Execute Stepper
	Check   Stepper
	Ready   Condition
	// Choice and Wait name the readiness decision and the pause between
	// checks. They default to "<check> Ready?" and "Wait For <check>".
	Choice   string
	Wait     string
	Interval time.Duration
	// MaxPolls bounds the number of waits. Zero keeps polling until the
	// execution's context ends.
	MaxPolls int
}

// PollUntilReady returns Execute -> Check -> Choice(ready -> then; otherwise
// Wait -> Check).
func PollUntilReady(p Poll, then Chain) Chain {
	check := p.Check.Step().Name

	choice := p.Choice
	if choice == "" {
		choice = check + " Ready?"
	}
	wait := p.Wait
	if wait == "" {
		wait = "Wait For " + check
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	notReady := Start(Wait(wait, interval).MaxVisits(p.MaxPolls)).Next(Ref(check))
	return Start(p.Execute).
		Next(p.Check).
		Next(Choose(choice).When(p.Ready, then).Otherwise(notReady))
}

var _ Stage = StageFunc(nil)

// compile-time check that builders satisfy Stepper.
var (
	_ Stepper = TaskBuilder{}
	_ Stepper = WaitBuilder{}
	_ Stepper = ChoiceBuilder{}
	_ Stepper = MapBuilder{}
	_ Stepper = ParallelBuilder{}
	_ Stepper = api.Step{}
)
