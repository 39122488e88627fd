package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dataproduct/journeys/pkg/api"
)

type taskOption func(*api.TaskSpec)

func resultAt(path string) taskOption {
	return func(t *api.TaskSpec) { t.ResultPath = path }
}

func retrying(n int, interval time.Duration) taskOption {
	return func(t *api.TaskSpec) {
		t.Retry = &api.RetryPolicy{MaxAttempts: n, Interval: interval, BackoffRate: 2}
	}
}

func catchTo(c api.Chain) taskOption {
	return func(t *api.TaskSpec) { t.Catch = &c }
}

func task(name, target string, opts ...taskOption) api.Step {
	spec := &api.TaskSpec{Target: target}
	for _, opt := range opts {
		opt(spec)
	}
	return api.Step{Name: name, Kind: api.KindTask, Task: spec}
}

func jobSucceeded() api.Step {
	return api.Step{Name: "Job Succeeded", Kind: api.KindSucceed}
}

func jobFailed() api.Step {
	return api.Step{Name: "Job Failed", Kind: api.KindFail, Fail: &api.FailSpec{Error: "JobFailed", Cause: "a step failed"}}
}

func ref(name string) api.Step {
	return api.Step{Kind: api.KindRef, Ref: name}
}

func chain(steps ...api.Step) api.Chain {
	c := api.Start(steps[0])
	for _, s := range steps[1:] {
		c = c.Next(s)
	}
	return c
}

func compile(t *testing.T, name string, c api.Chain, opts ...api.CompileOption) *api.Definition {
	t.Helper()
	def, err := api.Compile(name, c, opts...)
	require.NoError(t, err)
	return def
}

// recordingSleeper returns immediately and remembers every requested delay.
type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

// newTestEngine registers def against targets and returns the engine and
// the sleeper it uses.
func newTestEngine(t *testing.T, targets api.Targets, def *api.Definition) (api.Engine, *recordingSleeper) {
	t.Helper()
	sleeper := &recordingSleeper{}
	eng := NewEngineWithConfig(Config{Invoker: targets, Sleep: sleeper.Sleep})
	require.NoError(t, eng.Register(def))
	return eng, sleeper
}

func requireFailed(t *testing.T, exec *api.Execution, err error, errorName string) *api.ExecutionError {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, api.ErrExecutionFailed)
	var ee *api.ExecutionError
	require.ErrorAs(t, err, &ee)
	require.NotNil(t, exec)
	require.Equal(t, api.StatusFailed, exec.Status)
	require.NotNil(t, exec.Error)
	require.Equal(t, errorName, exec.Error.Error)
	require.Equal(t, errorName, ee.Detail.Error)
	return ee
}

func eventsOfType(exec *api.Execution, typ api.EventType) []api.Event {
	var out []api.Event
	for _, ev := range exec.History {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
