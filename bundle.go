package journeys

import (
	"database/sql"

	"github.com/dataproduct/journeys/internal/taskqueue"
	workerpkg "github.com/dataproduct/journeys/pkg/worker"
)

// WorkerBundle wires together an Engine, a durable run-request queue, and a
// Worker that consumes requests from that queue.
type WorkerBundle struct {
	Engine Engine
	Worker *workerpkg.Worker

	// queue is kept unexported; the public API focuses on Engine and Worker.
	queue taskqueue.Queue
}

// NewSQLiteBundle constructs a durable Engine + Queue + Worker combo sharing
// the same SQLite database. Registered definitions and queued run requests
// are persisted in the provided *sql.DB.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:journeys.db?_pragma=journal_mode(WAL)")
//	bundle, err := journeys.NewSQLiteBundle(db, targets)
//	// register journeys on bundle.Engine
//	// enqueue runs via bundle.Worker
func NewSQLiteBundle(db *sql.DB, invoker Invoker) (*WorkerBundle, error) {
	eng, err := NewSQLiteEngine(db, invoker)
	if err != nil {
		return nil, err
	}

	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	return &WorkerBundle{
		Engine: eng,
		Worker: workerpkg.New(eng, q),
		queue:  q,
	}, nil
}

// Pending returns the number of run requests not yet picked up.
func (b *WorkerBundle) Pending() int {
	return b.queue.Len()
}
