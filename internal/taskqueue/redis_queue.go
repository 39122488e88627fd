package taskqueue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisQueue implements the Queue interface using Redis.
//
// It uses a single Redis list with key:
//
//	<prefix>outbox
//
// Values are JSON-encoded Message structs.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue constructs a Redis-backed Queue.
// prefix is optional but recommended (e.g. "journeys:").
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "journeys:"
	}
	return &RedisQueue{
		client: client,
		key:    prefix + "outbox",
	}
}

// Ensure RedisQueue implements Queue.
var _ Queue = (*RedisQueue)(nil)

// Enqueue pushes a message onto the Redis list (LPUSH).
func (q *RedisQueue) Enqueue(ctx context.Context, m Message) error {
	data, err := EncodeMessage(m)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

// Dequeue blocks on BRPOP until a message is available or ctx is cancelled.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Message, error) {
	// BRPop returns [key, value]
	res, err := q.client.BRPop(ctx, 0, q.key).Result()
	if err != nil {
		return nil, err
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("redis queue: unexpected BRPOP result %#v", res)
	}
	return DecodeMessage([]byte(res[1]))
}

// Len returns the approximate number of messages queued (LLEN).
func (q *RedisQueue) Len() int {
	n, err := q.client.LLen(context.Background(), q.key).Result()
	if err != nil {
		// For a Len() helper, it's better to log and return 0 than panic.
		slog.Warn("redis queue length failed", slog.String("key", q.key), slog.Any("error", err))
		return 0
	}
	return int(n)
}
