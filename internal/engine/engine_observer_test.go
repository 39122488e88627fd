package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dataproduct/journeys/pkg/api"
)

type recordingObserver struct {
	api.NoopObserver

	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) add(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, s)
}

func (o *recordingObserver) OnExecutionStart(ctx context.Context, exec *api.Execution) {
	o.add("start")
}

func (o *recordingObserver) OnExecutionSucceeded(ctx context.Context, exec *api.Execution) {
	o.add("succeeded")
}

func (o *recordingObserver) OnExecutionFailed(ctx context.Context, exec *api.Execution, err error) {
	o.add("failed")
}

func (o *recordingObserver) OnStepStart(ctx context.Context, exec *api.Execution, step string, k api.StepKind) {
	o.add("step:" + step)
}

func (o *recordingObserver) OnTaskRetry(ctx context.Context, exec *api.Execution, step string, attempt int, err error) {
	o.add("retry:" + step)
}

func TestObserver_ReceivesExecutionAndStepCallbacks(t *testing.T) {
	obs := &recordingObserver{}
	eng := NewEngineWithConfig(Config{Invoker: visibilityTargets(), Observer: obs})
	require.NoError(t, eng.Register(visibilityDefinition(t)))

	_, err := eng.Run(context.Background(), "visibility", nil)
	require.NoError(t, err)

	require.Equal(t, []string{
		"start",
		"step:Assign Visibility Tags",
		"step:Update Catalog Record",
		"step:Job Succeeded",
		"succeeded",
	}, obs.events)
}

func TestObserver_BasicMetricsCountRetriesAndFailures(t *testing.T) {
	metrics := &api.BasicMetrics{}
	def := compile(t, "j", chain(
		task("Flaky", "flaky", retrying(1, 0), catchTo(api.Start(jobFailed()))),
		jobSucceeded(),
	))
	eng := NewEngineWithConfig(Config{
		Invoker: api.Targets{
			"flaky": func(ctx context.Context, in api.Payload) (any, error) { return nil, errors.New("down") },
		},
		Observer: api.NewCompositeObserver(metrics, &recordingObserver{}),
		Sleep:    func(ctx context.Context, d time.Duration) error { return nil },
	})
	require.NoError(t, eng.Register(def))

	_, err := eng.Run(context.Background(), "j", nil)
	require.Error(t, err)

	snap := metrics.Snapshot()
	require.Equal(t, int64(1), snap.ExecutionsStarted)
	require.Equal(t, int64(1), snap.ExecutionsFailed)
	require.Equal(t, int64(0), snap.RunningExecutions)
	require.Equal(t, int64(1), snap.TaskRetries)
	require.Equal(t, int64(1), snap.StepsFailed)
	require.Equal(t, int64(1), snap.StepsCompleted)
}

func TestHistory_FailedExecutionEvents(t *testing.T) {
	def := compile(t, "j", chain(
		task("Flaky", "flaky", retrying(1, 0), catchTo(api.Start(jobFailed()))),
		jobSucceeded(),
	))
	eng, _ := newTestEngine(t, api.Targets{
		"flaky": func(ctx context.Context, in api.Payload) (any, error) { return nil, errors.New("down") },
	}, def)

	exec, err := eng.Run(context.Background(), "j", nil)
	require.Error(t, err)

	var types []api.EventType
	for _, ev := range exec.History {
		types = append(types, ev.Type)
	}
	require.Equal(t, []api.EventType{
		api.EventExecutionStarted,
		api.EventStepEntered,
		api.EventTaskRetried,
		api.EventTaskCaught,
		api.EventStepFailed,
		api.EventStepEntered,
		api.EventStepSucceeded,
		api.EventExecutionFailed,
	}, types)
	require.False(t, exec.FinishedAt.Before(exec.StartedAt))
}
