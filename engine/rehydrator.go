package engine

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/haandol/event-sourcing-example/domain"
)

// Rehydrator reconstructs an aggregate's current state by folding its
// ordered event stream.
type Rehydrator struct {
	events EventLog
}

func NewRehydrator(events EventLog) Rehydrator {
	return Rehydrator{events: events}
}

// Rehydrate folds the aggregate's events in serial order. It returns nil
// when no events exist, meaning the aggregate does not exist yet. Events of
// unknown type are logged and skipped, never applied. ErrCorruptedLog is
// returned when the persisted stream violates the balance invariant.
func (r Rehydrator) Rehydrate(ctx context.Context, aggregateID string) (*domain.Account, error) {
	acct, _, err := r.replay(ctx, aggregateID)
	return acct, err
}

// replay additionally reports the serial number of the stream tail the
// fold was computed from. Handlers that validate before appending must
// target tail+1 so the conditional append rejects any write that raced the
// read; a fresh tail lookup after validation would reopen that window.
func (r Rehydrator) replay(ctx context.Context, aggregateID string) (*domain.Account, int64, error) {
	events, err := r.events.ListEvents(ctx, aggregateID)
	if err != nil {
		return nil, 0, err
	}
	if len(events) == 0 {
		return nil, 0, nil
	}

	var acct *domain.Account
	rest := events
	if events[0].Type == domain.AccountCreated {
		acct = domain.NewAccount(events[0])
		rest = events[1:]
	} else {
		// Deposits are accepted for aggregates that were never created, so
		// a stream can start with a transfer event. Fold from a zero state.
		acct = &domain.Account{ID: aggregateID}
	}
	for _, ev := range rest {
		if err := acct.Apply(ev); err != nil {
			if errors.Is(err, domain.ErrUnknownType) {
				log.WithFields(log.Fields{
					"aggregate": aggregateID,
					"serial":    ev.SerialNumber,
					"type":      ev.Type,
				}).Warn("skipping unknown event type during replay")
				continue
			}
			return nil, 0, err
		}
	}
	return acct, events[len(events)-1].SerialNumber, nil
}
