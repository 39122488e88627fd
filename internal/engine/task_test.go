package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dataproduct/journeys/pkg/api"
)

func TestTask_ResultWrittenAtResultPath(t *testing.T) {
	def := compile(t, "visibility", chain(
		task("Fetch Inputs", "fetch", resultAt("dataProductObject")),
		task("Assign Tags", "tags"),
		jobSucceeded(),
	))
	var seen api.Payload
	eng, _ := newTestEngine(t, api.Targets{
		"fetch": func(ctx context.Context, in api.Payload) (any, error) {
			return map[string]any{"id": in["dataProductId"]}, nil
		},
		"tags": func(ctx context.Context, in api.Payload) (any, error) {
			seen = in
			return "ignored", nil
		},
	}, def)

	exec, err := eng.Run(context.Background(), "visibility", api.Payload{"dataProductId": "dp-1"})
	require.NoError(t, err)
	require.Equal(t, api.StatusSucceeded, exec.Status)
	require.NotEmpty(t, exec.ID)
	require.Equal(t, "dp-1", mustGet(t, exec.Output, "dataProductObject.id"))
	require.Equal(t, "dp-1", mustGet(t, seen, "dataProductObject.id"))
	require.NotContains(t, exec.Output, "value", "side-effect result must be discarded")
	require.Equal(t, api.Payload{"dataProductId": "dp-1"}, exec.Input)
}

func TestTask_InputPathSelectsFragment(t *testing.T) {
	step := task("Grant", "grant")
	step.Task.InputPath = "currentConsumer"
	def := compile(t, "j", chain(step, jobSucceeded()))

	var got api.Payload
	eng, _ := newTestEngine(t, api.Targets{
		"grant": func(ctx context.Context, in api.Payload) (any, error) {
			got = in
			return nil, nil
		},
	}, def)

	_, err := eng.Run(context.Background(), "j", api.Payload{
		"currentConsumer": map[string]any{"id": "A"},
		"other":           1,
	})
	require.NoError(t, err)
	require.Equal(t, api.Payload{"id": "A"}, got)
}

func TestTask_RetryOnceMeansAtMostTwoInvocations(t *testing.T) {
	def := compile(t, "producer", chain(
		task("Register Tag", "tag", retrying(1, time.Second), catchTo(api.Start(jobFailed()))),
		jobSucceeded(),
	))

	var calls atomic.Int32
	eng, sleeper := newTestEngine(t, api.Targets{
		"tag": func(ctx context.Context, in api.Payload) (any, error) {
			calls.Add(1)
			return nil, errors.New("throttled")
		},
	}, def)

	exec, err := eng.Run(context.Background(), "producer", api.Payload{})
	ee := requireFailed(t, exec, err, "JobFailed")
	require.Equal(t, "Job Failed", ee.Step)

	require.Equal(t, int32(2), calls.Load())
	require.Equal(t, []time.Duration{time.Second}, sleeper.Waits())
	require.Equal(t, map[string]any{"Error": api.ErrNameTaskFailed, "Cause": "throttled"}, exec.Output[api.ErrorField])
}

func TestTask_RetrySucceedsOnSecondAttempt(t *testing.T) {
	def := compile(t, "j", chain(
		task("Flaky", "flaky", retrying(1, 0), resultAt("out"), catchTo(api.Start(jobFailed()))),
		jobSucceeded(),
	))

	var calls atomic.Int32
	eng, _ := newTestEngine(t, api.Targets{
		"flaky": func(ctx context.Context, in api.Payload) (any, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("temporary")
			}
			return "ok", nil
		},
	}, def)

	exec, err := eng.Run(context.Background(), "j", nil)
	require.NoError(t, err)
	require.Equal(t, "ok", exec.Output["out"])
	require.NotContains(t, exec.Output, api.ErrorField)
	require.Len(t, eventsOfType(exec, api.EventTaskRetried), 1)
	require.Equal(t, 2, eventsOfType(exec, api.EventTaskRetried)[0].Attempt)
}

func TestTask_BackoffGrowsAndIsCapped(t *testing.T) {
	step := task("Flaky", "flaky", catchTo(api.Start(jobFailed())))
	step.Task.Retry = &api.RetryPolicy{MaxAttempts: 4, Interval: time.Second, BackoffRate: 2, MaxDelay: 3 * time.Second}
	def := compile(t, "j", chain(step, jobSucceeded()))

	eng, sleeper := newTestEngine(t, api.Targets{
		"flaky": func(ctx context.Context, in api.Payload) (any, error) {
			return nil, errors.New("down")
		},
	}, def)

	_, err := eng.Run(context.Background(), "j", nil)
	require.Error(t, err)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}, sleeper.Waits())
}

func TestTask_NamedErrorIsReported(t *testing.T) {
	def := compile(t, "j", chain(
		task("Create Database", "db", catchTo(api.Start(jobFailed()))),
		jobSucceeded(),
	))
	eng, _ := newTestEngine(t, api.Targets{
		"db": func(ctx context.Context, in api.Payload) (any, error) {
			return nil, api.NewTaskError("Glue.AlreadyExistsException", errors.New("database exists"))
		},
	}, def)

	exec, err := eng.Run(context.Background(), "j", nil)
	requireFailed(t, exec, err, "JobFailed")
	caught := exec.Output[api.ErrorField].(map[string]any)
	require.Equal(t, "Glue.AlreadyExistsException", caught["Error"])
	require.Equal(t, "Glue.AlreadyExistsException: database exists", caught["Cause"])
}

func TestTask_UncaughtFailureEndsExecution(t *testing.T) {
	def := compile(t, "j", chain(task("A", "a"), task("B", "b"), jobSucceeded()))

	var bCalled bool
	eng, _ := newTestEngine(t, api.Targets{
		"a": func(ctx context.Context, in api.Payload) (any, error) { return nil, errors.New("boom") },
		"b": func(ctx context.Context, in api.Payload) (any, error) {
			bCalled = true
			return nil, nil
		},
	}, def)

	exec, err := eng.Run(context.Background(), "j", nil)
	ee := requireFailed(t, exec, err, api.ErrNameTaskFailed)
	require.Equal(t, "A", ee.Step)
	require.Equal(t, "boom", ee.Detail.Cause)
	require.EqualError(t, errors.Unwrap(err), "boom")
	require.False(t, bCalled)
}

func TestTask_CatchNeverReturnsToThrowingChain(t *testing.T) {
	recovery := chain(task("Cleanup", "cleanup"), jobFailed())
	def := compile(t, "j", chain(
		task("A", "a", catchTo(recovery)),
		task("B", "b"),
		jobSucceeded(),
	))

	var bCalled, cleaned bool
	eng, _ := newTestEngine(t, api.Targets{
		"a": func(ctx context.Context, in api.Payload) (any, error) { return nil, errors.New("boom") },
		"b": func(ctx context.Context, in api.Payload) (any, error) {
			bCalled = true
			return nil, nil
		},
		"cleanup": func(ctx context.Context, in api.Payload) (any, error) {
			cleaned = in.Has("error.Cause")
			return nil, nil
		},
	}, def)

	exec, err := eng.Run(context.Background(), "j", nil)
	requireFailed(t, exec, err, "JobFailed")
	require.True(t, cleaned)
	require.False(t, bCalled)
	require.Len(t, eventsOfType(exec, api.EventTaskCaught), 1)
}

func TestTask_TimeoutIsNotCaught(t *testing.T) {
	def := compile(t, "j", chain(
		task("Slow", "slow", retrying(3, 0), catchTo(chain(task("Cleanup", "cleanup"), jobFailed()))),
		jobSucceeded(),
	))

	var cleaned atomic.Bool
	eng, _ := newTestEngine(t, api.Targets{
		"slow": func(ctx context.Context, in api.Payload) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		"cleanup": func(ctx context.Context, in api.Payload) (any, error) {
			cleaned.Store(true)
			return nil, nil
		},
	}, def)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	exec, err := eng.Run(ctx, "j", nil)
	ee := requireFailed(t, exec, err, api.ErrNameTimeout)
	require.Equal(t, "Slow", ee.Step)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, cleaned.Load())
	require.Empty(t, eventsOfType(exec, api.EventTaskRetried))
}

func TestTask_CancelledBeforeStart(t *testing.T) {
	def := compile(t, "j", chain(task("A", "a"), jobSucceeded()))
	eng, _ := newTestEngine(t, api.Targets{
		"a": func(ctx context.Context, in api.Payload) (any, error) { return nil, nil },
	}, def)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec, err := eng.Run(ctx, "j", nil)
	requireFailed(t, exec, err, api.ErrNameCancelled)
	require.ErrorIs(t, err, context.Canceled)
}

func TestTask_CollaboratorCannotMutateEnginePayload(t *testing.T) {
	def := compile(t, "j", chain(task("Mutate", "mutate"), jobSucceeded()))
	eng, _ := newTestEngine(t, api.Targets{
		"mutate": func(ctx context.Context, in api.Payload) (any, error) {
			in["injected"] = true
			in["nested"].(map[string]any)["k"] = "changed"
			return nil, nil
		},
	}, def)

	exec, err := eng.Run(context.Background(), "j", api.Payload{"nested": map[string]any{"k": "v"}})
	require.NoError(t, err)
	require.NotContains(t, exec.Output, "injected")
	require.Equal(t, "v", mustGet(t, exec.Output, "nested.k"))
}

func mustGet(t *testing.T, p api.Payload, path string) any {
	t.Helper()
	v, ok := p.Get(path)
	require.True(t, ok, "path %q not found in %v", path, p)
	return v
}

func TestTask_TypedSlicesAreNotSharedAcrossBranches(t *testing.T) {
	def := compile(t, "j", chain(
		provision(api.Start(jobFailed()),
			api.Start(task("Rewrite Tags", "a")),
			api.Start(task("Read Tags", "b")),
		),
		jobSucceeded(),
	))

	mutated := make(chan struct{})
	var seenByB []string
	eng, _ := newTestEngine(t, api.Targets{
		"a": func(ctx context.Context, in api.Payload) (any, error) {
			in["tags"].([]string)[0] = "mutated-by-branch-a"
			in["owners"].(map[string]string)["team"] = "mutated-by-branch-a"
			close(mutated)
			return nil, nil
		},
		"b": func(ctx context.Context, in api.Payload) (any, error) {
			select {
			case <-mutated:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			seenByB = append([]string(nil), in["tags"].([]string)...)
			return nil, nil
		},
	}, def)

	input := api.Payload{
		"tags":   []string{"original"},
		"owners": map[string]string{"team": "original"},
	}
	exec, err := eng.Run(context.Background(), "j", input)
	require.NoError(t, err)
	require.Equal(t, []string{"original"}, seenByB)
	require.Equal(t, []string{"original"}, input["tags"])
	require.Equal(t, "original", input["owners"].(map[string]string)["team"])
	require.Equal(t, []string{"original"}, exec.Output["tags"])
	require.Equal(t, "original", exec.Output["owners"].(map[string]string)["team"])
}
