package taskqueue

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoQueue implements Queue on top of a MongoDB collection.
//
// Collection schema:
//
//	{
//	  _id:         string,  // message ID
//	  queue:       string,
//	  message:     []byte,  // JSON-encoded Message
//	  enqueued_at: int64,   // unix nanoseconds
//	}
type MongoQueue struct {
	coll         *mongo.Collection
	pollInterval time.Duration
}

type mongoMessageDoc struct {
	ID         string `bson:"_id"`
	Queue      string `bson:"queue"`
	Message    []byte `bson:"message"`
	EnqueuedAt int64  `bson:"enqueued_at"`
}

// NewMongoQueue creates a Mongo-backed queue.
// dbName defaults to "journeys", collName to "outbox_messages".
func NewMongoQueue(client *mongo.Client, dbName, collName string) *MongoQueue {
	if dbName == "" {
		dbName = "journeys"
	}
	if collName == "" {
		collName = "outbox_messages"
	}
	return &MongoQueue{
		coll:         client.Database(dbName).Collection(collName),
		pollInterval: 100 * time.Millisecond,
	}
}

// Ensure MongoQueue implements Queue.
var _ Queue = (*MongoQueue)(nil)

func (q *MongoQueue) Enqueue(ctx context.Context, m Message) error {
	if m.EnqueuedAt.IsZero() {
		m.EnqueuedAt = time.Now().UTC()
	}
	data, err := EncodeMessage(m)
	if err != nil {
		return err
	}
	_, err = q.coll.InsertOne(ctx, mongoMessageDoc{
		ID:         m.ID,
		Queue:      m.Queue,
		Message:    data,
		EnqueuedAt: m.EnqueuedAt.UnixNano(),
	})
	return err
}

// Dequeue blocks (via polling) until a message is available or ctx is
// cancelled. FindOneAndDelete claims the oldest message atomically.
func (q *MongoQueue) Dequeue(ctx context.Context) (*Message, error) {
	tmr := time.NewTimer(0)
	if !tmr.Stop() {
		<-tmr.C
	}
	defer tmr.Stop()

	opts := options.FindOneAndDelete().
		SetSort(bson.D{{Key: "enqueued_at", Value: 1}, {Key: "_id", Value: 1}})

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		var doc mongoMessageDoc
		err := q.coll.FindOneAndDelete(ctx, bson.M{}, opts).Decode(&doc)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
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
		return DecodeMessage(doc.Message)
	}
}

// Len returns an approximate number of queued messages.
func (q *MongoQueue) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := q.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0
	}
	return int(n)
}
