package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is one outbound notification produced by a journey task, for
// example the message telling a consumer that access has been granted.
type Message struct {
	ID string `json:"id"`
	// Queue names the destination the message is meant for.
	Queue string `json:"queue"`
	// Body is the JSON-encoded message payload.
	Body       json.RawMessage   `json:"body"`
	Attributes map[string]string `json:"attributes,omitempty"`
	EnqueuedAt time.Time         `json:"enqueuedAt"`
}

// NewMessage builds a Message for queue with body encoded as JSON.
func NewMessage(queue string, body any) (Message, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return Message{}, fmt.Errorf("encode message body: %w", err)
	}
	return Message{
		ID:         uuid.NewString(),
		Queue:      queue,
		Body:       data,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the message body into v.
func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Body, v)
}

// Queue is a simple FIFO outbox.
type Queue interface {
	// Enqueue adds a message to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, m Message) error

	// Dequeue removes and returns the next message, blocking until one is
	// available or the context is cancelled.
	Dequeue(ctx context.Context) (*Message, error)

	// Len returns the approximate number of messages queued.
	Len() int
}
