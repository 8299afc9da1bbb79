package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/haandol/event-sourcing-example/bus"
	"github.com/haandol/event-sourcing-example/domain"
)

// HandlerFunc handles one routed message payload.
type HandlerFunc func(ctx context.Context, payload []byte) error

// MessageConsumer is the bus side the dispatcher reads from.
type MessageConsumer interface {
	Fetch(ctx context.Context) (bus.Message, error)
	Commit(ctx context.Context, msg bus.Message) error
}

// DeadLetter receives messages the dispatcher gives up on.
type DeadLetter interface {
	Push(ctx context.Context, payload []byte) error
}

// Dispatcher consumes one partition-ordered message stream and routes each
// message to its handler by the type discriminator. A message is committed
// exactly once its handler outcome is settled: business rejections are
// logged and consumed, collaborator failures are retried with backoff and
// then dead-lettered, unroutable messages are dead-lettered immediately.
type Dispatcher struct {
	consumer   MessageConsumer
	routes     map[string]HandlerFunc
	deadLetter DeadLetter
	logger     *log.Logger
	maxRetries int
	retryDelay time.Duration
}

func NewDispatcher(consumer MessageConsumer, routes map[string]HandlerFunc, deadLetter DeadLetter, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		consumer:   consumer,
		routes:     routes,
		deadLetter: deadLetter,
		logger:     logger,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// Routes builds the fixed routing table over the service's handlers. Every
// command and event type the system knows is listed here; anything else is
// unroutable by construction.
func Routes(s *Service) map[string]HandlerFunc {
	return map[string]HandlerFunc{
		domain.CreateAccount:  commandRoute(s.CreateAccount),
		domain.DepositMoney:   commandRoute(s.DepositMoney),
		domain.WithdrawMoney:  commandRoute(s.WithdrawMoney),
		domain.AccountCreated: eventRoute(s.PersistDomainEvent),
		domain.MoneyDeposited: eventRoute(s.PersistDomainEvent),
		domain.MoneyWithdrawn: eventRoute(s.PersistDomainEvent),
	}
}

func commandRoute(handle func(context.Context, domain.Command) error) HandlerFunc {
	return func(ctx context.Context, payload []byte) error {
		var cmd domain.Command
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("decode command: %w", err)
		}
		return handle(ctx, cmd)
	}
}

func eventRoute(handle func(context.Context, domain.DomainEvent) error) HandlerFunc {
	return func(ctx context.Context, payload []byte) error {
		var ev domain.DomainEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		return handle(ctx, ev)
	}
}

// Run consumes messages until the context is cancelled. The in-flight
// message is always handled and committed before returning.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		msg, err := d.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.WithError(err).Error("fetch message")
			select {
			case <-time.After(d.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		// The message is handled to completion even when shutdown started
		// mid-flight; only the next fetch observes the cancellation.
		d.dispatch(ctx, msg)

		if err := d.consumer.Commit(ctx, msg); err != nil {
			// Redelivery after a failed commit is absorbed by the command
			// log and the conditional event append.
			d.logger.WithError(err).WithFields(log.Fields{
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Error("commit offset")
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, msg bus.Message) {
	var err error
	metrics, spanCtx := newMessageMetrics(ctx, d.logger, msg.Partition, msg.Offset)
	defer func() { metrics.Log(err) }()

	var head struct {
		Type string `json:"type"`
	}
	if decodeErr := json.Unmarshal(msg.Value, &head); decodeErr != nil {
		metrics.SetErrorStage("decode")
		err = fmt.Errorf("decode envelope: %w", decodeErr)
		d.toDeadLetter(spanCtx, msg, err)
		return
	}
	metrics.SetType(head.Type)

	route, ok := d.routes[head.Type]
	if !ok {
		metrics.SetErrorStage("route")
		err = fmt.Errorf("%w: %s", domain.ErrUnknownType, head.Type)
		d.toDeadLetter(spanCtx, msg, err)
		return
	}

	for attempt := 0; ; attempt++ {
		metrics.SetAttempts(attempt + 1)
		handleStart := time.Now()
		err = route(spanCtx, msg.Value)
		metrics.ObserveHandle(time.Since(handleStart))
		if err == nil {
			return
		}
		if isRejection(err) {
			if attempt > 0 && errors.Is(err, domain.ErrDuplicateCommand) {
				// The command log write from a failed earlier attempt of
				// this same delivery stuck, so the command is recorded but
				// its effect is unverified. Park it for inspection instead
				// of swallowing it as a replay.
				metrics.SetErrorStage("recorded_unapplied")
				d.toDeadLetter(spanCtx, msg, err)
				return
			}
			// Terminal for this message; the command had its answer.
			metrics.SetErrorStage("rejected")
			return
		}
		if errors.Is(err, domain.ErrCorruptedLog) {
			metrics.SetErrorStage("corrupted_log")
			d.logger.WithError(err).WithFields(log.Fields{
				"partition": msg.Partition,
				"offset":    msg.Offset,
				"type":      head.Type,
			}).Error("event log corruption detected")
			d.toDeadLetter(spanCtx, msg, err)
			return
		}
		if attempt >= d.maxRetries {
			metrics.SetErrorStage("exhausted")
			d.toDeadLetter(spanCtx, msg, err)
			return
		}
		select {
		case <-time.After(d.retryDelay << attempt):
		case <-spanCtx.Done():
			metrics.SetErrorStage("cancelled")
			return
		}
	}
}

// isRejection reports whether the handler outcome is a business answer
// rather than a collaborator failure. Rejections are never retried.
func isRejection(err error) bool {
	return errors.Is(err, domain.ErrDuplicateCommand) ||
		errors.Is(err, domain.ErrAccountAlreadyExists) ||
		errors.Is(err, domain.ErrAccountNotFound) ||
		errors.Is(err, domain.ErrInsufficientFunds)
}

func (d *Dispatcher) toDeadLetter(ctx context.Context, msg bus.Message, cause error) {
	if d.deadLetter == nil {
		return
	}
	if err := d.deadLetter.Push(ctx, msg.Value); err != nil {
		d.logger.WithError(err).WithFields(log.Fields{
			"partition": msg.Partition,
			"offset":    msg.Offset,
			"cause":     cause.Error(),
		}).Error("dead-letter push failed; message dropped")
		return
	}
	d.logger.WithFields(log.Fields{
		"partition": msg.Partition,
		"offset":    msg.Offset,
		"cause":     cause.Error(),
	}).Warn("message dead-lettered")
}
