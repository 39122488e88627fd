package journeys

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dataproduct/journeys/internal/taskqueue"
	"github.com/dataproduct/journeys/pkg/worker"
)

// LocalRunner bundles an in-memory Engine, an in-memory run-request queue, and
// a Worker to provide a simple "local runner" for development and debugging.
//
// Typical usage:
//
//	runner := journeys.NewLocalRunner(targets)
//	journeys.New("visibility").Stage(...).MustRegister(runner.Engine)
//
//	// Synchronous run (no queue/worker involved):
//	exec, err := journeys.Run(ctx, runner.Engine, "visibility", input)
//
//	// Asynchronous run:
//	_ = runner.StartWorkers(ctx, 2)
//	_ = runner.RunAsync(ctx, "visibility", input)
//	...
//	runner.Stop()
type LocalRunner struct {
	// Engine is the in-memory journey engine used by this runner.
	Engine Engine

	// Queue is the in-memory run-request queue used by the Worker.
	Queue taskqueue.Queue

	// Worker processes run requests from Queue using Engine.
	Worker *worker.Worker

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory engine
// invoking collaborators through invoker, an in-memory queue, and a Worker.
//
// This is intended for local development, tests, and simple single-process
// deployments.
func NewLocalRunner(invoker Invoker) *LocalRunner {
	eng := NewEngine(invoker)
	q := taskqueue.NewInMemoryQueue(1024)
	w := worker.New(eng, q)

	return &LocalRunner{
		Engine: eng,
		Queue:  q,
		Worker: w,
	}
}

// StartWorkers starts 'concurrency' worker goroutines that continuously call
// Worker.ProcessOne(ctx) until the context is cancelled via Stop.
//
// If StartWorkers is called more than once without Stop, it returns an error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("journeys: LocalRunner already started")
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()

			for {
				processed, err := r.Worker.ProcessOne(ctx)
				if err != nil {
					// For local runner we treat cancellation as a clean shutdown signal.
					if ctx.Err() != nil {
						return
					}
					// Failed executions and bad requests are logged; the
					// loop keeps going.
					slog.Warn("local runner request failed", slog.Any("error", err))
					continue
				}
				if !processed {
					// Only happens if ctx was cancelled before a request was obtained.
					continue
				}
			}
		}()
	}

	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits
// for them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// RunAsync enqueues a request to run the given journey asynchronously.
// The journey must already be registered on LocalRunner.Engine.
func (r *LocalRunner) RunAsync(ctx context.Context, journey string, input Payload) error {
	return r.Worker.EnqueueRun(ctx, journey, input)
}
