// Package engine implements the command side of the event-sourcing
// backbone: commands are validated against the rehydrated aggregate and, if
// accepted, produce exactly one domain event appended to the aggregate's
// log under the next serial number. The event log's conditional append is
// the only concurrency control; every handler that reads before it writes
// retries the whole read-validate-append span when it loses the slot race.
package engine

import (
	"context"

	"github.com/haandol/event-sourcing-example/domain"
)

// CommandLog records commands for at-most-once application.
type CommandLog interface {
	RecordCommand(ctx context.Context, cmd domain.Command) error
}

// EventLog is the append-only store of domain events.
type EventLog interface {
	AppendEvent(ctx context.Context, ev domain.DomainEvent) error
	ListEvents(ctx context.Context, aggregateID string) ([]domain.DomainEvent, error)
	LatestEvent(ctx context.Context, aggregateID string) (*domain.DomainEvent, error)
}

// Publisher emits accepted domain events back onto the bus, keyed by
// aggregate id.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}
