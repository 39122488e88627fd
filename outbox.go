package journeys

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dataproduct/journeys/internal/persistence"
	"github.com/dataproduct/journeys/internal/taskqueue"
)

type (
	// Outbox is a FIFO queue of outbound messages.
	Outbox = taskqueue.Queue
	// Message is one outbound message.
	Message = taskqueue.Message
)

// NewInMemoryOutbox returns an Outbox backed by an in-memory FIFO that holds
// at most capacity messages. Enqueue blocks while it is full.
func NewInMemoryOutbox(capacity int) Outbox {
	return taskqueue.NewInMemoryQueue(capacity)
}

// NewSQLiteOutbox returns an Outbox persisted in db.
func NewSQLiteOutbox(db *sql.DB) (Outbox, error) {
	return taskqueue.NewSQLiteQueue(db)
}

// NewRedisOutbox returns an Outbox stored in a Redis list under prefix.
func NewRedisOutbox(client *redis.Client, prefix string) Outbox {
	return taskqueue.NewRedisQueue(client, prefix)
}

// NewPostgresOutbox returns an Outbox persisted in a PostgreSQL table.
func NewPostgresOutbox(db *sql.DB) (Outbox, error) {
	return taskqueue.NewPostgresQueue(db)
}

// NewMongoOutbox returns an Outbox stored in a MongoDB collection. Empty
// names select "journeys" and "outbox_messages".
func NewMongoOutbox(client *mongo.Client, dbName, collName string) Outbox {
	return taskqueue.NewMongoQueue(client, dbName, collName)
}

// OpenOutbox connects to backend ("memory", "sqlite", "postgres", "redis" or
// "mongo") using the same DSN forms as OpenEngine, and returns an Outbox with
// a function that closes the connection.
func OpenOutbox(ctx context.Context, backend, dsn string) (Outbox, func() error, error) {
	b, err := persistence.ParseBackend(backend)
	if err != nil {
		return nil, nil, err
	}
	noop := func() error { return nil }

	switch b {
	case persistence.BackendMemory:
		return NewInMemoryOutbox(1024), noop, nil

	case persistence.BackendSQLite, persistence.BackendPostgres:
		driver := "sqlite"
		if b == persistence.BackendPostgres {
			driver = "pgx"
		}
		db, err := sql.Open(driver, dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		var out Outbox
		if b == persistence.BackendPostgres {
			out, err = NewPostgresOutbox(db)
		} else {
			out, err = NewSQLiteOutbox(db)
		}
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return out, db.Close, nil

	case persistence.BackendRedis:
		opts, err := redis.ParseURL(dsn)
		if err != nil {
			return nil, nil, err
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return NewRedisOutbox(client, ""), client.Close, nil

	case persistence.BackendMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(dsn))
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() error { return client.Disconnect(context.Background()) }
		if err := client.Ping(ctx, nil); err != nil {
			_ = closeFn()
			return nil, nil, err
		}
		return NewMongoOutbox(client, "", ""), closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unknown outbox backend %q", backend)
	}
}

// QueueTarget returns a TaskFunc that publishes its input as a message for
// queue on out. The task result carries the message ID under "messageId".
func QueueTarget(out Outbox, queue string) TaskFunc {
	return func(ctx context.Context, input Payload) (any, error) {
		m, err := taskqueue.NewMessage(queue, input)
		if err != nil {
			return nil, err
		}
		if err := out.Enqueue(ctx, m); err != nil {
			return nil, err
		}
		return map[string]any{"messageId": m.ID}, nil
	}
}
