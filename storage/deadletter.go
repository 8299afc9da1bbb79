package storage

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
)

// DeadLetterQueue receives messages the dispatcher gives up on so they can
// be inspected and replayed out of band.
type DeadLetterQueue struct {
	queue *azqueue.QueueClient
}

// NewDeadLetterQueue creates a dead-letter client for the named queue.
func NewDeadLetterQueue(connStr, name string) (*DeadLetterQueue, error) {
	queue, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
	if err != nil {
		return nil, err
	}
	return &DeadLetterQueue{queue: queue}, nil
}

// Push enqueues the raw message payload.
func (q *DeadLetterQueue) Push(ctx context.Context, payload []byte) error {
	_, err := q.queue.EnqueueMessage(ctx, string(payload), nil)
	return err
}
