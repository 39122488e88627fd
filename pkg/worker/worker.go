package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/dataproduct/journeys/internal/taskqueue"
	"github.com/dataproduct/journeys/pkg/api"
)

// RunQueue is the queue name of messages that request a journey execution.
const RunQueue = "journeys.run"

// Message attributes understood by the worker.
const (
	AttrJourney = "journey"
	AttrVersion = "version"
)

// Worker pulls run requests from a Queue and executes them using an Engine.
type Worker struct {
	engine api.Engine
	queue  taskqueue.Queue
}

// New creates a new Worker.
func New(engine api.Engine, queue taskqueue.Queue) *Worker {
	return &Worker{
		engine: engine,
		queue:  queue,
	}
}

// EnqueueRun enqueues a request to run the latest version of a journey.
// It does NOT run the journey itself; that is done by ProcessOne.
func (w *Worker) EnqueueRun(ctx context.Context, journey string, input api.Payload) error {
	return w.EnqueueRunVersion(ctx, journey, "", input)
}

// EnqueueRunVersion enqueues a request to run a specific journey version. An
// empty version means the latest one registered when the request is processed.
func (w *Worker) EnqueueRunVersion(ctx context.Context, journey, version string, input api.Payload) error {
	if input == nil {
		input = api.Payload{}
	}
	m, err := taskqueue.NewMessage(RunQueue, input)
	if err != nil {
		return err
	}
	m.Attributes = map[string]string{AttrJourney: journey}
	if version != "" {
		m.Attributes[AttrVersion] = version
	}
	return w.queue.Enqueue(ctx, m)
}

// ProcessOne pulls a single run request from the queue and executes it.
// Returns (processed, error):
//   - processed == false: no request was obtained (ctx cancelled or the queue failed)
//   - processed == true: a request was handled; err reports a malformed
//     request or a failed execution (an *api.ExecutionError).
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	m, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, nil
	}

	if m.Queue != RunQueue {
		return true, fmt.Errorf("unexpected message for queue %q", m.Queue)
	}
	journey := m.Attributes[AttrJourney]
	if journey == "" {
		return true, errors.New("run request has no journey attribute")
	}

	var input api.Payload
	if err := m.Decode(&input); err != nil {
		return true, fmt.Errorf("decode run request %s: %w", m.ID, err)
	}

	if version := m.Attributes[AttrVersion]; version != "" {
		_, err = w.engine.RunVersion(ctx, journey, version, input)
	} else {
		_, err = w.engine.Run(ctx, journey, input)
	}
	return true, err
}
