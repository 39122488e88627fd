package journey

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataproduct/journeys"
	"github.com/dataproduct/journeys/pkg/api"
)

func TestParseConsumerKind(t *testing.T) {
	k, err := ParseConsumerKind("LakeFormation")
	require.NoError(t, err)
	assert.Equal(t, ConsumerLakeFormation, k)

	k, err = ParseConsumerKind(" iam ")
	require.NoError(t, err)
	assert.Equal(t, ConsumerIAM, k)

	_, err = ParseConsumerKind("s3")
	require.Error(t, err)
}

func TestConsumer_ProcessesEveryConsumer(t *testing.T) {
	sim := &Simulator{}
	eng := newEngine(t, sim, fastOptions())

	exec, err := run(t, eng, Consumer, journeys.Payload{FieldDataProductID: "dp-9"})
	require.NoError(t, err)
	assert.Equal(t, journeys.StatusSucceeded, exec.Status)

	assert.Equal(t, 1, sim.Calls(TargetConsumerCreateLinkedDB))
	assert.Equal(t, 1, sim.Calls(TargetConsumerGrantRoleAccess))
	assert.Equal(t, 1, sim.Calls(TargetConsumerGrantConsumerAccess))
	assert.Equal(t, 1, sim.Calls(TargetConsumerUpdateBucketPolicy))
	assert.Equal(t, 2, sim.Calls(TargetConsumerDispatchMessage))

	assert.Equal(t, []string{
		"Consumer Type",
		"Create Linked Database",
		"Grant Role Access",
		"Grant Consumer Access",
		"Dispatch Consumer Message",
	}, stepsEntered(exec, StepProcessConsumers+"[0]"))
	assert.Equal(t, []string{
		"Consumer Type",
		"Update Bucket Policy",
		"Dispatch Consumer Message",
	}, stepsEntered(exec, StepProcessConsumers+"[1]"))

	// Iteration fields stay inside the iteration.
	assert.False(t, exec.Output.Has(FieldCurrentConsumer))
	assert.False(t, exec.Output.Has(FieldDispatch))
}

func TestConsumer_IterationSeesCarriedDataProduct(t *testing.T) {
	sim := &Simulator{Consumers: []map[string]any{{"id": "ml", "type": "iam"}}}
	targets := sim.Targets()

	var seen journeys.Payload
	targets[TargetConsumerUpdateBucketPolicy] = func(_ context.Context, in journeys.Payload) (any, error) {
		seen = in.Clone()
		return map[string]any{"updated": true}, nil
	}
	eng := journeys.NewEngine(targets)
	require.NoError(t, NewConsumer(fastOptions()).Register(eng))

	_, err := run(t, eng, Consumer, journeys.Payload{FieldDataProductID: "dp-9"})
	require.NoError(t, err)

	require.NotNil(t, seen)
	assert.ElementsMatch(t, []string{FieldCurrentConsumer, FieldDataProduct}, keys(seen))
	id, _ := seen.String(FieldCurrentConsumer + ".id")
	assert.Equal(t, "ml", id)
	product, _ := seen.String(FieldDataProduct + ".id")
	assert.Equal(t, "dp-9", product)
}

func TestConsumer_DispatchesToOutbox(t *testing.T) {
	out := journeys.NewInMemoryOutbox(10)
	sim := &Simulator{Outbox: out}
	eng := newEngine(t, sim, fastOptions())

	_, err := run(t, eng, Consumer, journeys.Payload{FieldDataProductID: "dp-9"})
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())

	ctx := context.Background()
	for range 2 {
		m, err := out.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, ConsumerQueue, m.Queue)

		var body journeys.Payload
		require.NoError(t, m.Decode(&body))
		assert.True(t, body.Has(FieldCurrentConsumer))
	}
}

func TestConsumer_SequentialByDefault(t *testing.T) {
	consumers := make([]map[string]any, 0, 4)
	for _, id := range []string{"a", "b", "c", "d"} {
		consumers = append(consumers, map[string]any{"id": id, "type": "iam"})
	}
	sim := &Simulator{Consumers: consumers}
	targets := sim.Targets()

	var (
		mu      sync.Mutex
		order   []string
		running atomic.Int32
		peak    atomic.Int32
	)
	targets[TargetConsumerUpdateBucketPolicy] = func(_ context.Context, in journeys.Payload) (any, error) {
		n := running.Add(1)
		defer running.Add(-1)
		if n > peak.Load() {
			peak.Store(n)
		}
		time.Sleep(2 * time.Millisecond)

		id, _ := in.String(FieldCurrentConsumer + ".id")
		mu.Lock()
		order = append(order, id)
		mu.Unlock()
		return map[string]any{"updated": true}, nil
	}
	eng := journeys.NewEngine(targets)
	require.NoError(t, NewConsumer(fastOptions()).Register(eng))

	_, err := run(t, eng, Consumer, journeys.Payload{FieldDataProductID: "dp-9"})
	require.NoError(t, err)

	assert.Equal(t, int32(1), peak.Load())
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
}

func TestConsumer_ConcurrencyIsConfigurable(t *testing.T) {
	opts := fastOptions()
	opts.ConsumerConcurrency = 3

	def, err := NewConsumer(opts).Build()
	require.NoError(t, err)
	n, ok := def.Node(StepProcessConsumers)
	require.True(t, ok)
	assert.Equal(t, 3, n.Step.Map.MaxConcurrency)
	assert.Equal(t, FieldCurrentConsumer, n.Step.Map.ItemField)
	assert.Equal(t, []string{FieldDataProduct}, n.Step.Map.Carry)
}

func TestConsumer_UnknownTypeFailsTheMap(t *testing.T) {
	sim := &Simulator{}
	eng := newEngine(t, sim, fastOptions())

	input := journeys.Payload{
		FieldDataProductID: "dp-9",
		"consumers":        []any{map[string]any{"id": "x", "type": "s3"}},
	}
	exec, err := run(t, eng, Consumer, input)
	require.ErrorIs(t, err, api.ErrExecutionFailed)
	assert.Equal(t, ErrJobFailed, exec.Error.Error)

	name, _ := exec.Output.String(journeys.ErrorField + ".Error")
	assert.Equal(t, api.ErrNameNoChoiceMatched, name)
	assert.Zero(t, sim.Calls(TargetConsumerDispatchMessage))
}

func TestConsumer_ItemFailureStopsRemainingConsumers(t *testing.T) {
	sim := &Simulator{
		Consumers: []map[string]any{
			{"id": "a", "type": "iam"},
			{"id": "b", "type": "iam"},
			{"id": "c", "type": "iam"},
		},
		FailTimes: map[string]int{TargetConsumerUpdateBucketPolicy: 2},
	}
	eng := newEngine(t, sim, fastOptions())

	exec, err := run(t, eng, Consumer, journeys.Payload{FieldDataProductID: "dp-9"})
	require.ErrorIs(t, err, api.ErrExecutionFailed)
	assert.Equal(t, ErrJobFailed, exec.Error.Error)

	// The first consumer used both attempts; the others never started.
	assert.Equal(t, 2, sim.Calls(TargetConsumerUpdateBucketPolicy))
	assert.Zero(t, sim.Calls(TargetConsumerDispatchMessage))
	assert.Equal(t, []string{"Fetch Inputs", "Fetch Consumers", StepProcessConsumers, StepJobFailed}, stepsEntered(exec, ""))
}

func TestConsumer_NoConsumersSucceeds(t *testing.T) {
	sim := &Simulator{Consumers: []map[string]any{}}
	eng := newEngine(t, sim, fastOptions())

	exec, err := run(t, eng, Consumer, journeys.Payload{FieldDataProductID: "dp-9"})
	require.NoError(t, err)
	assert.Equal(t, journeys.StatusSucceeded, exec.Status)
	assert.Zero(t, sim.Calls(TargetConsumerDispatchMessage))
}

func TestConsumer_DispatchIsShared(t *testing.T) {
	def, err := NewConsumer(DefaultOptions()).Build()
	require.NoError(t, err)

	n, _ := def.Node(StepProcessConsumers)
	var dispatch int
	for _, inner := range n.Iterator.Nodes {
		if inner.Kind() == api.KindTask && inner.Step.Task.Target == TargetConsumerDispatchMessage {
			dispatch++
		}
	}
	assert.Equal(t, 1, dispatch)
}
