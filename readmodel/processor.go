package readmodel

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/haandol/event-sourcing-example/bus"
	"github.com/haandol/event-sourcing-example/domain"
)

// MessageConsumer is the bus side the processor reads from.
type MessageConsumer interface {
	Fetch(ctx context.Context) (bus.Message, error)
	Commit(ctx context.Context, msg bus.Message) error
}

// Processor drives the read model: it consumes the shared account topic in
// its own consumer group, projects every domain event and refreshes the
// cache entry for the touched account. Commands on the topic are skipped;
// they belong to the command engine's group.
type Processor struct {
	consumer   MessageConsumer
	projector  Projector
	cache      *Cache
	logger     *log.Logger
	retryDelay time.Duration
}

func NewProcessor(consumer MessageConsumer, projector Projector, cache *Cache, logger *log.Logger) *Processor {
	return &Processor{
		consumer:   consumer,
		projector:  projector,
		cache:      cache,
		logger:     logger,
		retryDelay: time.Second,
	}
}

// Run consumes until the context is cancelled. A failed projection blocks
// the partition: the same message is retried in place, because skipping it
// would leave a hole the snapshot could never recover from. Retrying is
// safe since Apply ignores already-projected serials.
func (p *Processor) Run(ctx context.Context) error {
	for {
		msg, err := p.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.WithError(err).Error("fetch message")
			select {
			case <-time.After(p.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		for err := p.process(ctx, msg); err != nil; err = p.process(ctx, msg) {
			p.logger.WithError(err).WithFields(log.Fields{
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Error("project event")
			select {
			case <-time.After(p.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := p.consumer.Commit(ctx, msg); err != nil {
			p.logger.WithError(err).WithFields(log.Fields{
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Error("commit offset")
		}
	}
}

func (p *Processor) process(ctx context.Context, msg bus.Message) error {
	var ev domain.DomainEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		// Not an envelope this side understands; nothing to project.
		p.logger.WithError(err).WithFields(log.Fields{
			"partition": msg.Partition,
			"offset":    msg.Offset,
		}).Warn("undecodable message skipped")
		return nil
	}
	if !isDomainEvent(ev.Type) {
		return nil
	}
	if err := p.projector.Apply(ctx, ev); err != nil {
		return err
	}
	p.cache.Refresh(ctx, ev.AggregateID)
	p.logger.WithFields(log.Fields{
		"aggregate": ev.AggregateID,
		"serial":    ev.SerialNumber,
		"type":      ev.Type,
	}).Info("event projected")
	return nil
}

func isDomainEvent(evType string) bool {
	switch evType {
	case domain.AccountCreated, domain.MoneyDeposited, domain.MoneyWithdrawn:
		return true
	default:
		return false
	}
}
