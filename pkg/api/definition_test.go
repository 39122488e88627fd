package api

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func taskStep(name, target string) Step {
	return Step{Name: name, Kind: KindTask, Task: &TaskSpec{Target: target}}
}

func writing(s Step, resultPath string, reads ...string) Step {
	t := *s.Task
	t.ResultPath = resultPath
	t.Reads = reads
	s.Task = &t
	return s
}

func catching(s Step, c Chain) Step {
	t := *s.Task
	t.Catch = &c
	s.Task = &t
	return s
}

func jobFailed() Step {
	return Step{Name: "Job Failed", Kind: KindFail, Fail: &FailSpec{Error: "JobFailed", Cause: "a step failed"}}
}

func jobSucceeded() Step {
	return Step{Name: "Job Succeeded", Kind: KindSucceed}
}

func waitStep(name string) Step {
	return Step{Name: name, Kind: KindWait, Wait: &WaitSpec{Duration: time.Minute}}
}

func refStep(name string) Step {
	return Step{Kind: KindRef, Ref: name}
}

func choiceStep(name string, rules []ChoiceRule, otherwise *Chain) Step {
	return Step{Name: name, Kind: KindChoice, Choice: &ChoiceSpec{Rules: rules, Otherwise: otherwise}}
}

func chainOf(steps ...Step) Chain {
	c := Start(steps[0])
	for _, s := range steps[1:] {
		c = c.Next(s)
	}
	return c
}

func requireBuildError(t *testing.T, err error, target error, step string) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, target)
	var be *BuildError
	require.True(t, errors.As(err, &be), "expected *BuildError, got %T", err)
	if step != "" {
		require.Equal(t, step, be.Step)
	}
}

func TestChain_IsImmutable(t *testing.T) {
	a, b, c := taskStep("A", "a"), taskStep("B", "b"), taskStep("C", "c")

	base := Start(a)
	left := base.Next(b)
	right := base.Next(c)

	require.Equal(t, 1, base.Len())
	require.Equal(t, []Step{a, b}, left.Steps())
	require.Equal(t, []Step{a, c}, right.Steps())

	steps := left.Steps()
	steps[0] = c
	require.Equal(t, "A", left.Entry())
}

func TestCompile_LinearChain(t *testing.T) {
	def, err := Compile("visibility", chainOf(taskStep("A", "a"), taskStep("B", "b"), jobSucceeded()))
	require.NoError(t, err)

	require.Equal(t, "A", def.StartAt)
	require.Equal(t, DefaultVersion, def.Version)
	require.Equal(t, []string{"A", "B", "Job Succeeded"}, def.Order)
	require.Equal(t, "B", def.Nodes["A"].Next)
	require.Equal(t, "Job Succeeded", def.Nodes["B"].Next)
	require.Empty(t, def.Nodes["Job Succeeded"].Next)
	require.NotEmpty(t, def.Fingerprint)
}

func TestCompile_SharedFailureChainCompilesOnce(t *testing.T) {
	fail := Start(jobFailed())
	chain := chainOf(
		catching(taskStep("A", "a"), fail),
		catching(taskStep("B", "b"), fail),
		jobSucceeded(),
	)

	def, err := Compile("j", chain)
	require.NoError(t, err)
	require.Len(t, def.Nodes, 4)
	require.Equal(t, "Job Failed", def.Nodes["A"].Catch)
	require.Equal(t, "Job Failed", def.Nodes["B"].Catch)
}

func TestCompile_DuplicateNameDifferentStep(t *testing.T) {
	_, err := Compile("j", chainOf(taskStep("A", "a"), taskStep("A", "other")))
	requireBuildError(t, err, ErrDuplicateStep, "A")
}

func TestCompile_SharedNodeMustContinueTheSameWay(t *testing.T) {
	shared := taskStep("Dispatch", "dispatch")
	chain := Start(choiceStep("Route",
		[]ChoiceRule{
			{Condition: StringEquals("kind", "a"), Chain: chainOf(shared, taskStep("X", "x"))},
			{Condition: StringEquals("kind", "b"), Chain: chainOf(shared, taskStep("Y", "y"))},
		}, nil))

	_, err := Compile("j", chain)
	requireBuildError(t, err, ErrDuplicateStep, "Dispatch")
}

func TestCompile_StructuralErrors(t *testing.T) {
	tests := []struct {
		name   string
		chain  Chain
		target error
	}{
		{"empty chain", Chain{}, ErrEmptyChain},
		{"missing target", Start(taskStep("A", "")), ErrMissingTarget},
		{"missing name", Start(taskStep("", "a")), ErrEmptyStepName},
		{"step after terminal", chainOf(jobSucceeded(), taskStep("A", "a")), ErrStepAfterTerminal},
		{"unknown ref", chainOf(taskStep("A", "a"), refStep("Nope")), ErrUnknownSuccessor},
		{"empty choice", Start(choiceStep("C", nil, nil)), ErrEmptyChoice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := Compile("j", tt.chain)
			require.Nil(t, def)
			requireBuildError(t, err, tt.target, "")
		})
	}
}

func TestCompile_PollLoopThroughWaitIsAllowed(t *testing.T) {
	otherwise := chainOf(waitStep("Wait For Crawler"), refStep("Check Crawler"))
	chain := chainOf(
		taskStep("Run Crawler", "run"),
		writing(taskStep("Check Crawler", "check"), "crawler"),
		choiceStep("Crawler Ready?", []ChoiceRule{
			{Condition: BooleanEquals("crawler.ready", true), Chain: Start(jobSucceeded())},
		}, &otherwise),
	)

	def, err := Compile("j", chain)
	require.NoError(t, err)
	require.Equal(t, "Check Crawler", def.Nodes["Wait For Crawler"].Next)
	require.Equal(t, "Wait For Crawler", def.Nodes["Crawler Ready?"].Default)
}

func TestCompile_CycleWithoutWaitIsRejected(t *testing.T) {
	back := Start(refStep("Check"))
	chain := chainOf(
		taskStep("Check", "check"),
		choiceStep("Ready?", []ChoiceRule{
			{Condition: BooleanEquals("ready", true), Chain: Start(jobSucceeded())},
		}, &back),
	)

	_, err := Compile("j", chain)
	requireBuildError(t, err, ErrUnguardedCycle, "")
}

func TestCompile_ClosedSetChoiceMustBeExhaustive(t *testing.T) {
	step := choiceStep("Route", []ChoiceRule{
		{Condition: StringEquals("currentConsumer.type", "iam"), Chain: Start(jobSucceeded())},
	}, nil)
	step.Choice.Path = "currentConsumer.type"
	step.Choice.Variants = []string{"iam", "lakeformation"}

	_, err := Compile("j", Start(step))
	requireBuildError(t, err, ErrNonExhaustiveChoice, "Route")
	require.Contains(t, err.Error(), "lakeformation")

	otherwise := Start(jobFailed())
	step.Choice.Otherwise = &otherwise
	_, err = Compile("j", Start(step))
	require.NoError(t, err)
}

func TestCompile_MapRequiresFailureTarget(t *testing.T) {
	m := Step{Name: "Process", Kind: KindMap, Map: &MapSpec{
		ItemsPath: "items",
		ItemField: "item",
		Iterator:  Start(taskStep("Handle", "handle")),
	}}
	_, err := Compile("j", chainOf(m, jobSucceeded()))
	requireBuildError(t, err, ErrMissingFailureTarget, "Process")

	fail := Start(jobFailed())
	m.Map.Failure = &fail
	m.Map.MaxConcurrency = -1
	_, err = Compile("j", chainOf(m, jobSucceeded()))
	requireBuildError(t, err, ErrInvalidConcurrency, "Process")

	m.Map.MaxConcurrency = 1
	def, err := Compile("j", chainOf(m, jobSucceeded()))
	require.NoError(t, err)
	n := def.Nodes["Process"]
	require.Equal(t, "Job Succeeded", n.Next)
	require.Equal(t, "Job Failed", n.Failure)
	require.Equal(t, "Handle", n.Iterator.StartAt)
}

func TestCompile_ParallelBranchesMustWriteDisjointFields(t *testing.T) {
	fail := Start(jobFailed())
	par := func(a, b Chain) Step {
		return Step{Name: "Provision", Kind: KindParallel, Parallel: &ParallelSpec{
			Branches: []Chain{a, b},
			Failure:  &fail,
		}}
	}

	conflicting := par(
		Start(writing(taskStep("Create Database", "db.iam"), "database")),
		Start(writing(taskStep("Create Database", "db.lf"), "database.lf")),
	)
	_, err := Compile("j", chainOf(conflicting, jobSucceeded()))
	requireBuildError(t, err, ErrConflictingWrites, "Provision")

	disjoint := par(
		Start(writing(taskStep("Create Database", "db.iam"), "iamDatabase")),
		Start(writing(taskStep("Create Database", "db.lf"), "lakeFormationDatabase")),
	)
	def, err := Compile("j", chainOf(disjoint, jobSucceeded()))
	require.NoError(t, err)
	require.Len(t, def.Nodes["Provision"].Branches, 2)
	require.Equal(t, "Provision/1", def.Nodes["Provision"].Branches[1].Name)
}

func TestCompile_DeclaredReadsMustBeWrittenUpstream(t *testing.T) {
	reader := writing(taskStep("Use Names", "use"), "", "glueDatabaseName.iam")

	_, err := Compile("j", chainOf(taskStep("Fetch", "fetch"), reader, jobSucceeded()), WithInputs("dataProductId"))
	requireBuildError(t, err, ErrUnsatisfiedRead, "Use Names")

	ok := chainOf(writing(taskStep("Compute", "compute"), "glueDatabaseName"), reader, jobSucceeded())
	_, err = Compile("j", ok, WithInputs("dataProductId"))
	require.NoError(t, err)

	// Without declared inputs reads are not checked.
	_, err = Compile("j", chainOf(reader, jobSucceeded()))
	require.NoError(t, err)
}

func TestCompile_ReadsMustBeWrittenOnEveryPath(t *testing.T) {
	reader := writing(taskStep("Use X", "use"), "", "x")
	otherwise := Start(reader)
	chain := Start(choiceStep("Route", []ChoiceRule{
		{Condition: IsPresent("flag"), Chain: chainOf(writing(taskStep("Write X", "write"), "x"), refStep("Use X"))},
	}, &otherwise))

	_, err := Compile("j", chain, WithInputs("flag"))
	requireBuildError(t, err, ErrUnsatisfiedRead, "Use X")
}

func TestValidate_UnreachableNode(t *testing.T) {
	def := &Definition{
		Name:    "j",
		StartAt: "A",
		Nodes: map[string]*Node{
			"A":      {Step: jobSucceeded()},
			"Orphan": {Step: jobFailed()},
		},
		Order: []string{"A", "Orphan"},
	}
	def.Nodes["A"].Step.Name = "A"

	requireBuildError(t, Validate(def), ErrUnreachableStep, "Orphan")
}

func TestRetryPolicy_Delay(t *testing.T) {
	r := RetryPolicy{MaxAttempts: 3, Interval: time.Second, BackoffRate: 2, MaxDelay: 3 * time.Second}

	require.Equal(t, time.Duration(0), r.Delay(0))
	require.Equal(t, time.Second, r.Delay(1))
	require.Equal(t, 2*time.Second, r.Delay(2))
	require.Equal(t, 3*time.Second, r.Delay(3))

	require.Equal(t, time.Duration(0), RetryPolicy{MaxAttempts: 1}.Delay(1))
	require.Equal(t, time.Second, RetryPolicy{Interval: time.Second}.Delay(4))
}
