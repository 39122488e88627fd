package journeys

import (
	"sort"
	"time"

	"github.com/dataproduct/journeys/pkg/api"
)

// TaskBuilder builds a Task step. Every method returns a new builder, so a
// partially configured task can be shared as a template:
//
//	register := journeys.Task("Register Tag", "producer.registerTag").
//	    Result("tag").
//	    Retry(journeys.Retry(1).WithExponentialBackoff(2*time.Second, 2, 0)).
//	    Catch(jobFailed)
type TaskBuilder struct {
	step api.Step
}

// Task starts a task named name that invokes target.
func Task(name, target string) TaskBuilder {
	return TaskBuilder{step: api.Step{
		Name: name,
		Kind: api.KindTask,
		Task: &api.TaskSpec{Target: target},
	}}
}

func (b TaskBuilder) with(fn func(t *api.TaskSpec)) TaskBuilder {
	t := *b.step.Task
	t.Reads = append([]string(nil), t.Reads...)
	fn(&t)
	b.step.Task = &t
	return b
}

// Input selects the part of the payload handed to the collaborator.
func (b TaskBuilder) Input(path string) TaskBuilder {
	return b.with(func(t *api.TaskSpec) { t.InputPath = path })
}

// Result sets the path the collaborator's result is written to. Without it
// the result is discarded.
func (b TaskBuilder) Result(path string) TaskBuilder {
	return b.with(func(t *api.TaskSpec) { t.ResultPath = path })
}

// Reads declares payload fields the task expects to be present.
func (b TaskBuilder) Reads(fields ...string) TaskBuilder {
	return b.with(func(t *api.TaskSpec) { t.Reads = append(t.Reads, fields...) })
}

// Retry attaches a retry policy.
func (b TaskBuilder) Retry(r RetryBuilder) TaskBuilder {
	p := r.Policy()
	return b.with(func(t *api.TaskSpec) { t.Retry = &p })
}

// Catch routes the task to c once its retries are exhausted.
func (b TaskBuilder) Catch(c Chain) TaskBuilder {
	return b.with(func(t *api.TaskSpec) { t.Catch = &c })
}

// Name returns the task name.
func (b TaskBuilder) Name() string { return b.step.Name }

// Step returns the built step.
func (b TaskBuilder) Step() api.Step { return b.step }

// WaitBuilder builds a Wait step.
type WaitBuilder struct {
	step api.Step
}

// Wait pauses for d before continuing.
func Wait(name string, d time.Duration) WaitBuilder {
	return WaitBuilder{step: api.Step{
		Name: name,
		Kind: api.KindWait,
		Wait: &api.WaitSpec{Duration: d},
	}}
}

// MaxVisits bounds how often the wait may be entered in one run. Zero means
// unbounded.
func (b WaitBuilder) MaxVisits(n int) WaitBuilder {
	w := *b.step.Wait
	w.MaxVisits = n
	b.step.Wait = &w
	return b
}

// Step returns the built step.
func (b WaitBuilder) Step() api.Step { return b.step }

// ChoiceBuilder builds a Choice step. Rules are evaluated in the order they
// were added and the first match wins.
type ChoiceBuilder struct {
	step api.Step
}

// Choose starts a Choice step.
func Choose(name string) ChoiceBuilder {
	return ChoiceBuilder{step: api.Step{
		Name:   name,
		Kind:   api.KindChoice,
		Choice: &api.ChoiceSpec{},
	}}
}

func (b ChoiceBuilder) with(fn func(c *api.ChoiceSpec)) ChoiceBuilder {
	c := *b.step.Choice
	c.Rules = append([]api.ChoiceRule(nil), c.Rules...)
	c.Variants = append([]string(nil), c.Variants...)
	c.Undeclared = append([]string(nil), c.Undeclared...)
	fn(&c)
	b.step.Choice = &c
	return b
}

// When routes to ch when cond matches.
func (b ChoiceBuilder) When(cond Condition, ch Chain) ChoiceBuilder {
	return b.with(func(c *api.ChoiceSpec) {
		c.Rules = append(c.Rules, api.ChoiceRule{Condition: cond, Chain: ch})
	})
}

// Otherwise routes to ch when no rule matches.
func (b ChoiceBuilder) Otherwise(ch Chain) ChoiceBuilder {
	return b.with(func(c *api.ChoiceSpec) { c.Otherwise = &ch })
}

// Step returns the built step.
func (b ChoiceBuilder) Step() api.Step { return b.step }

// SwitchOn routes on the string value at path, one chain per variant of a
// closed set. Compile fails unless every variant has a route or Otherwise
// is added, and fails when routes has a key outside variants.
func SwitchOn[T ~string](name, path string, variants []T, routes map[T]Chain) ChoiceBuilder {
	b := Choose(name)
	return b.with(func(c *api.ChoiceSpec) {
		c.Path = path
		declared := make(map[T]bool, len(variants))
		for _, v := range variants {
			declared[v] = true
			c.Variants = append(c.Variants, string(v))
			if ch, ok := routes[v]; ok {
				c.Rules = append(c.Rules, api.ChoiceRule{
					Condition: api.StringEquals(path, string(v)),
					Chain:     ch,
				})
			}
		}
		for k := range routes {
			if !declared[k] {
				c.Undeclared = append(c.Undeclared, string(k))
			}
		}
		sort.Strings(c.Undeclared)
	})
}

// MapBuilder builds a Map step.
type MapBuilder struct {
	step api.Step
}

// Map runs iterator once per element of the list at itemsPath. Each
// iteration sees the element under "item" unless ItemAs is used.
func Map(name, itemsPath string, iterator Chain) MapBuilder {
	return MapBuilder{step: api.Step{
		Name: name,
		Kind: api.KindMap,
		Map: &api.MapSpec{
			ItemsPath: itemsPath,
			ItemField: "item",
			Iterator:  iterator,
		},
	}}
}

func (b MapBuilder) with(fn func(m *api.MapSpec)) MapBuilder {
	m := *b.step.Map
	m.Carry = append([]string(nil), m.Carry...)
	fn(&m)
	b.step.Map = &m
	return b
}

// ItemAs sets the field each element is stored under.
func (b MapBuilder) ItemAs(field string) MapBuilder {
	return b.with(func(m *api.MapSpec) { m.ItemField = field })
}

// Carry copies parent payload paths into every iteration.
func (b MapBuilder) Carry(paths ...string) MapBuilder {
	return b.with(func(m *api.MapSpec) { m.Carry = append(m.Carry, paths...) })
}

// MaxConcurrency bounds the number of iterations running at once. Zero runs
// every iteration concurrently.
func (b MapBuilder) MaxConcurrency(n int) MapBuilder {
	return b.with(func(m *api.MapSpec) { m.MaxConcurrency = n })
}

// Result stores the ordered iteration outputs at path.
func (b MapBuilder) Result(path string) MapBuilder {
	return b.with(func(m *api.MapSpec) { m.ResultPath = path })
}

// OnSuccess continues with ch once every iteration succeeded.
func (b MapBuilder) OnSuccess(ch Chain) MapBuilder {
	return b.with(func(m *api.MapSpec) { m.Success = &ch })
}

// OnFailure routes to ch when any iteration fails.
func (b MapBuilder) OnFailure(ch Chain) MapBuilder {
	return b.with(func(m *api.MapSpec) { m.Failure = &ch })
}

// Step returns the built step.
func (b MapBuilder) Step() api.Step { return b.step }

// ParallelBuilder builds a Parallel step.
type ParallelBuilder struct {
	step api.Step
}

// Parallel runs every branch concurrently on its own copy of the payload.
// Once all succeed, the fields each branch writes are merged back.
func Parallel(name string, branches ...Chain) ParallelBuilder {
	return ParallelBuilder{step: api.Step{
		Name: name,
		Kind: api.KindParallel,
		Parallel: &api.ParallelSpec{
			Branches: append([]Chain(nil), branches...),
		},
	}}
}

func (b ParallelBuilder) with(fn func(p *api.ParallelSpec)) ParallelBuilder {
	p := *b.step.Parallel
	p.Branches = append([]Chain(nil), p.Branches...)
	fn(&p)
	b.step.Parallel = &p
	return b
}

// Result also stores the ordered branch outputs at path.
func (b ParallelBuilder) Result(path string) ParallelBuilder {
	return b.with(func(p *api.ParallelSpec) { p.ResultPath = path })
}

// OnSuccess continues with ch once every branch succeeded.
func (b ParallelBuilder) OnSuccess(ch Chain) ParallelBuilder {
	return b.with(func(p *api.ParallelSpec) { p.Success = &ch })
}

// OnFailure routes to ch when any branch fails.
func (b ParallelBuilder) OnFailure(ch Chain) ParallelBuilder {
	return b.with(func(p *api.ParallelSpec) { p.Failure = &ch })
}

// Step returns the built step.
func (b ParallelBuilder) Step() api.Step { return b.step }

// Succeed is a terminal success step.
func Succeed(name string) Step {
	return api.Step{Name: name, Kind: api.KindSucceed}
}

// Fail is a terminal failure step reporting errName and cause.
func Fail(name, errName, cause string) Step {
	return api.Step{Name: name, Kind: api.KindFail, Fail: &api.FailSpec{Error: errName, Cause: cause}}
}

// Ref continues at a step declared elsewhere in the same scope.
func Ref(name string) Step {
	return api.Step{Kind: api.KindRef, Ref: name}
}
