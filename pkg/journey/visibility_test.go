package journey

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataproduct/journeys"
	"github.com/dataproduct/journeys/pkg/api"
)

func TestVisibility_RunsLinearly(t *testing.T) {
	sim := &Simulator{}
	eng := newEngine(t, sim, fastOptions())

	exec, err := run(t, eng, Visibility, journeys.Payload{FieldDataProductID: "dp-3"})
	require.NoError(t, err)
	assert.Equal(t, journeys.StatusSucceeded, exec.Status)

	assert.Equal(t, []string{
		"Fetch Inputs",
		"Assign Visibility Tags",
		"Update Catalog Record",
		"Emit Completion Event",
		StepJobSucceeded,
	}, stepsEntered(exec, ""))

	event, _ := exec.Output.String(FieldCompletionEvent + ".eventId")
	assert.Equal(t, "visibility:dp-3", event)
}

func TestVisibility_CompletionEventGoesToOutbox(t *testing.T) {
	out := journeys.NewInMemoryOutbox(4)
	eng := newEngine(t, &Simulator{Outbox: out}, fastOptions())

	exec, err := run(t, eng, Visibility, journeys.Payload{FieldDataProductID: "dp-3"})
	require.NoError(t, err)

	m, err := out.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EventsQueue, m.Queue)

	id, _ := exec.Output.String(FieldCompletionEvent + ".messageId")
	assert.Equal(t, m.ID, id)
}

func TestVisibility_FailureNeverReachesLaterStages(t *testing.T) {
	sim := &Simulator{FailTimes: map[string]int{TargetVisibilityAssignTags: 2}}
	eng := newEngine(t, sim, fastOptions())

	exec, err := run(t, eng, Visibility, journeys.Payload{FieldDataProductID: "dp-3"})
	require.ErrorIs(t, err, api.ErrExecutionFailed)

	assert.Equal(t, []string{"Fetch Inputs", "Assign Visibility Tags", StepJobFailed}, stepsEntered(exec, ""))
	assert.Zero(t, sim.Calls(TargetVisibilityUpdateCatalogRecord))
	assert.Zero(t, sim.Calls(TargetVisibilityEmitCompletionEvent))
	assert.Len(t, eventsOf(exec, api.EventTaskRetried), 1)
	assert.Len(t, eventsOf(exec, api.EventTaskCaught), 1)
}

func TestVisibility_DeclaresInputs(t *testing.T) {
	def, err := NewVisibility(DefaultOptions()).Build()
	require.NoError(t, err)
	assert.Equal(t, []string{FieldDataProductID}, def.Inputs)
}

func eventsOf(exec *journeys.Execution, typ api.EventType) []api.Event {
	var out []api.Event
	for _, ev := range exec.History {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
