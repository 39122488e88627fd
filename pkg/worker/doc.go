// Package worker runs journeys asynchronously.
//
// A Worker consumes run requests from a message queue (in-memory, SQLite or
// Redis) and executes them on an engine. Requests are plain queue messages:
// the journey input is the JSON body and the journey name and optional
// version travel as message attributes, so any producer able to write to the
// queue can trigger an execution.
//
// Several workers may consume the same queue. Each request is executed by
// exactly one of them; a failed execution is reported to the caller of
// ProcessOne and is not retried by the worker.
package worker
