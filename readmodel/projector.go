// Package readmodel projects the domain event stream into a queryable
// account snapshot: a table row per account plus a Redis cache entry. The
// event log remains the source of truth; everything here can be rebuilt by
// replay.
package readmodel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/haandol/event-sourcing-example/domain"
	"github.com/haandol/event-sourcing-example/storage"
)

// AccountStore is the slice of storage the projector writes through.
type AccountStore interface {
	GetAccount(ctx context.Context, accountID string) (*storage.AccountRecord, error)
	InsertAccount(ctx context.Context, rec storage.AccountRecord) error
	UpdateAccount(ctx context.Context, rec storage.AccountRecord, etag string) error
}

// Projector applies domain events to the account read model.
type Projector struct {
	store AccountStore
}

func NewProjector(store AccountStore) Projector {
	return Projector{store: store}
}

// Apply folds one event into the projected account. Events at or below the
// projected version are replays and are ignored; concurrent writers are
// resolved by re-reading on ETag conflict.
func (p Projector) Apply(ctx context.Context, ev domain.DomainEvent) error {
	switch ev.Type {
	case domain.AccountCreated:
		rec := storage.AccountRecord{
			ID:        ev.AggregateID,
			Balance:   0,
			Version:   ev.SerialNumber,
			UpdatedAt: ev.Timestamp,
		}
		if err := p.store.InsertAccount(ctx, rec); err != nil {
			if errors.Is(err, domain.ErrConcurrencyConflict) {
				log.WithField("account", ev.AggregateID).Debug("account already projected")
				return nil
			}
			return err
		}
		return nil
	case domain.MoneyDeposited, domain.MoneyWithdrawn:
		return p.applyTransfer(ctx, ev)
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnknownType, ev.Type)
	}
}

func (p Projector) applyTransfer(ctx context.Context, ev domain.DomainEvent) error {
	var data domain.TransferData
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		return fmt.Errorf("decode %s payload: %w", ev.Type, err)
	}
	amount := data.Amount
	if ev.Type == domain.MoneyWithdrawn {
		amount = -amount
	}

	for {
		rec, err := p.store.GetAccount(ctx, ev.AggregateID)
		if err != nil {
			return err
		}
		if rec == nil {
			// Funds cannot leave an account that was never projected; such
			// an event did not come out of the engine.
			if ev.Type == domain.MoneyWithdrawn {
				return fmt.Errorf("withdrawal from unprojected account %s at serial %d: %w",
					ev.AggregateID, ev.SerialNumber, domain.ErrCorruptedLog)
			}
			if ev.SerialNumber != 1 {
				return fmt.Errorf("projection gap for %s: no record, got serial %d",
					ev.AggregateID, ev.SerialNumber)
			}
			// Deposits into never-created accounts are legal upstream, so
			// the snapshot starts from zero here too.
			ins := storage.AccountRecord{
				ID:        ev.AggregateID,
				Balance:   amount,
				Version:   ev.SerialNumber,
				UpdatedAt: ev.Timestamp,
			}
			if err := p.store.InsertAccount(ctx, ins); err != nil {
				if errors.Is(err, domain.ErrConcurrencyConflict) {
					continue
				}
				return err
			}
			return nil
		}
		if ev.SerialNumber <= rec.Version {
			log.WithFields(log.Fields{
				"account":   ev.AggregateID,
				"serial":    ev.SerialNumber,
				"projected": rec.Version,
			}).Debug("stale event ignored")
			return nil
		}
		if ev.SerialNumber != rec.Version+1 {
			return fmt.Errorf("projection gap for %s: have version %d, got serial %d",
				ev.AggregateID, rec.Version, ev.SerialNumber)
		}
		upd := storage.AccountRecord{
			ID:        ev.AggregateID,
			Balance:   rec.Balance + amount,
			Version:   ev.SerialNumber,
			UpdatedAt: ev.Timestamp,
		}
		if err := p.store.UpdateAccount(ctx, upd, rec.ETag); err != nil {
			if errors.Is(err, domain.ErrConcurrencyConflict) {
				continue
			}
			return err
		}
		return nil
	}
}
