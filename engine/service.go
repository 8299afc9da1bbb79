package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/haandol/event-sourcing-example/domain"
)

const defaultMaxAttempts = 5

// Service holds the command handlers. Every handler follows the same
// shape: record the command, then run an optimistic loop of rehydrate,
// validate, assign a serial number and conditionally append, retrying from
// the top whenever the slot was taken by a concurrent writer. The accepted
// event is published keyed by its aggregate id.
type Service struct {
	commands    CommandLog
	events      EventLog
	sequencer   Sequencer
	rehydrator  Rehydrator
	publisher   Publisher
	maxAttempts int
}

func NewService(commands CommandLog, events EventLog, publisher Publisher, maxAttempts int) *Service {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Service{
		commands:    commands,
		events:      events,
		sequencer:   NewSequencer(events),
		rehydrator:  NewRehydrator(events),
		publisher:   publisher,
		maxAttempts: maxAttempts,
	}
}

// CreateAccount accepts the command only when the aggregate has no events
// yet; the creation event always takes slot 1.
func (s *Service) CreateAccount(ctx context.Context, cmd domain.Command) error {
	var data domain.AccountData
	if err := json.Unmarshal(cmd.Data, &data); err != nil {
		return fmt.Errorf("decode %s payload: %w", cmd.Type, err)
	}
	if data.AccountID == "" {
		return fmt.Errorf("%s %s: missing accountId", cmd.Type, cmd.ID)
	}
	if err := s.commands.RecordCommand(ctx, cmd); err != nil {
		return err
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		acct, _, err := s.rehydrator.replay(ctx, data.AccountID)
		if err != nil {
			return err
		}
		if acct != nil {
			return fmt.Errorf("account %s: %w", data.AccountID, domain.ErrAccountAlreadyExists)
		}
		ev := domain.NewDomainEvent(domain.AccountCreated, data.AccountID, 1, cmd.Data)
		if err := s.events.AppendEvent(ctx, ev); err != nil {
			if errors.Is(err, domain.ErrSlotOccupied) {
				// Lost the race for slot 1; the next pass sees the winner.
				continue
			}
			return err
		}
		return s.publish(ctx, ev)
	}
	return fmt.Errorf("create account %s: %d attempts: %w", data.AccountID, s.maxAttempts, domain.ErrSlotOccupied)
}

// DepositMoney appends a deposit at the next free slot. There is no
// existence check: depositing into a not-yet-created account is accepted.
func (s *Service) DepositMoney(ctx context.Context, cmd domain.Command) error {
	data, err := transferData(cmd)
	if err != nil {
		return err
	}
	if err := s.commands.RecordCommand(ctx, cmd); err != nil {
		return err
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		serial, err := s.sequencer.NextSerialNumber(ctx, data.AccountID)
		if err != nil {
			return err
		}
		ev := domain.NewDomainEvent(domain.MoneyDeposited, data.AccountID, serial, cmd.Data)
		if err := s.events.AppendEvent(ctx, ev); err != nil {
			if errors.Is(err, domain.ErrSlotOccupied) {
				continue
			}
			return err
		}
		return s.publish(ctx, ev)
	}
	return fmt.Errorf("deposit to %s: %d attempts: %w", data.AccountID, s.maxAttempts, domain.ErrSlotOccupied)
}

// WithdrawMoney validates the balance against the rehydrated state and
// appends the withdrawal at the slot right after the replayed tail. The
// rehydrate-validate-append span is not atomic, so losing the slot race
// restarts it against fresh state; two concurrent withdrawals can
// therefore never both pass validation on the same balance.
func (s *Service) WithdrawMoney(ctx context.Context, cmd domain.Command) error {
	data, err := transferData(cmd)
	if err != nil {
		return err
	}
	if err := s.commands.RecordCommand(ctx, cmd); err != nil {
		return err
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		acct, tail, err := s.rehydrator.replay(ctx, data.AccountID)
		if err != nil {
			return err
		}
		if acct == nil {
			return fmt.Errorf("account %s: %w", data.AccountID, domain.ErrAccountNotFound)
		}
		if acct.Balance < data.Amount {
			return fmt.Errorf("account %s: balance %d short of %d: %w",
				data.AccountID, acct.Balance, data.Amount, domain.ErrInsufficientFunds)
		}
		ev := domain.NewDomainEvent(domain.MoneyWithdrawn, data.AccountID, tail+1, cmd.Data)
		if err := s.events.AppendEvent(ctx, ev); err != nil {
			if errors.Is(err, domain.ErrSlotOccupied) {
				continue
			}
			return err
		}
		return s.publish(ctx, ev)
	}
	return fmt.Errorf("withdraw from %s: %d attempts: %w", data.AccountID, s.maxAttempts, domain.ErrSlotOccupied)
}

// PersistDomainEvent is the write side of the publish/subscribe loop:
// domain events arriving back off the bus are appended to the event log.
// The handler that accepted the command already appended the event, so an
// occupied slot here means the log is already durable.
func (s *Service) PersistDomainEvent(ctx context.Context, ev domain.DomainEvent) error {
	if err := s.events.AppendEvent(ctx, ev); err != nil {
		if errors.Is(err, domain.ErrSlotOccupied) {
			log.WithFields(log.Fields{
				"aggregate": ev.AggregateID,
				"serial":    ev.SerialNumber,
				"type":      ev.Type,
			}).Debug("event already persisted")
			return nil
		}
		return err
	}
	return nil
}

func (s *Service) publish(ctx context.Context, ev domain.DomainEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, ev.AggregateID, payload); err != nil {
		return fmt.Errorf("publish %s for %s: %w", ev.Type, ev.AggregateID, err)
	}
	log.WithFields(log.Fields{
		"aggregate": ev.AggregateID,
		"serial":    ev.SerialNumber,
		"type":      ev.Type,
	}).Info("event published")
	return nil
}

func transferData(cmd domain.Command) (domain.TransferData, error) {
	var data domain.TransferData
	if err := json.Unmarshal(cmd.Data, &data); err != nil {
		return data, fmt.Errorf("decode %s payload: %w", cmd.Type, err)
	}
	if data.AccountID == "" {
		return data, fmt.Errorf("%s %s: missing accountId", cmd.Type, cmd.ID)
	}
	if data.Amount <= 0 {
		return data, fmt.Errorf("%s %s: amount must be positive, got %d", cmd.Type, cmd.ID, data.Amount)
	}
	return data, nil
}
