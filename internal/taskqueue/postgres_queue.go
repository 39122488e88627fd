package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresQueue implements Queue using a PostgreSQL table.
//
// Schema (created automatically if missing):
//
//	CREATE TABLE IF NOT EXISTS outbox_messages (
//	    seq         BIGSERIAL PRIMARY KEY,
//	    id          TEXT NOT NULL,
//	    queue       TEXT NOT NULL,
//	    message     BYTEA NOT NULL,
//	    enqueued_at TIMESTAMPTZ NOT NULL
//	);
//
// The queue is FIFO by seq.
type PostgresQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewPostgresQueue creates the required schema if needed and returns a Queue.
func NewPostgresQueue(db *sql.DB) (*PostgresQueue, error) {
	q := &PostgresQueue{db: db, pollInterval: 100 * time.Millisecond}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

// Ensure PostgresQueue implements Queue.
var _ Queue = (*PostgresQueue)(nil)

func (q *PostgresQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS outbox_messages (
			seq         BIGSERIAL PRIMARY KEY,
			id          TEXT NOT NULL,
			queue       TEXT NOT NULL,
			message     BYTEA NOT NULL,
			enqueued_at TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}

func (q *PostgresQueue) Enqueue(ctx context.Context, m Message) error {
	if m.EnqueuedAt.IsZero() {
		m.EnqueuedAt = time.Now().UTC()
	}
	data, err := EncodeMessage(m)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO outbox_messages (id, queue, message, enqueued_at)
		VALUES ($1, $2, $3, $4)
	`, m.ID, m.Queue, data, m.EnqueuedAt)
	return err
}

// Dequeue blocks (with polling) until a message is available or ctx is
// cancelled.
//
// The oldest row is claimed with SELECT ... FOR UPDATE SKIP LOCKED and
// deleted in the same transaction, so concurrent consumers never receive
// the same message.
func (q *PostgresQueue) Dequeue(ctx context.Context) (*Message, error) {
	tmr := time.NewTimer(0)
	if !tmr.Stop() {
		<-tmr.C
	}
	defer tmr.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		tx, err := q.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}

		var (
			seq  int64
			data []byte
		)
		err = tx.QueryRowContext(ctx, `
			SELECT seq, message
			FROM outbox_messages
			ORDER BY seq
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		`).Scan(&seq, &data)
		if err != nil {
			_ = tx.Rollback()
			if errors.Is(err, sql.ErrNoRows) {
				tmr.Reset(q.pollInterval)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-tmr.C:
				}
				continue
			}
			return nil, err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM outbox_messages WHERE seq = $1`, seq); err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}

		m, err := DecodeMessage(data)
		if err != nil {
			return nil, fmt.Errorf("decode message %d: %w", seq, err)
		}
		return m, nil
	}
}

// Len returns an approximate number of queued messages.
func (q *PostgresQueue) Len() int {
	var n int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM outbox_messages`).Scan(&n); err != nil {
		return 0
	}
	return n
}
