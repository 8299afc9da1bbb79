package domain

import (
	"encoding/json"
	"fmt"
)

// Account is the ledger aggregate. It is never persisted as-is; it only
// exists as the fold of its event stream within one command-handling
// operation.
type Account struct {
	ID      string
	Balance int64
	Version int64
}

// NewAccount initializes state from the AccountCreated event.
func NewAccount(ev DomainEvent) *Account {
	return &Account{ID: ev.AggregateID, Balance: 0, Version: ev.SerialNumber}
}

// Apply folds one event into the account. ErrUnknownType is returned for
// event types the fold does not recognize so the caller can decide whether
// to skip; the account is left untouched in that case. A withdrawal that
// would drive the balance negative means the persisted stream is invalid
// and yields ErrCorruptedLog.
func (a *Account) Apply(ev DomainEvent) error {
	switch ev.Type {
	case MoneyDeposited:
		var data TransferData
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			return fmt.Errorf("decode %s payload: %w", ev.Type, err)
		}
		a.Balance += data.Amount
	case MoneyWithdrawn:
		var data TransferData
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			return fmt.Errorf("decode %s payload: %w", ev.Type, err)
		}
		if a.Balance < data.Amount {
			return fmt.Errorf("%w: balance %d short of withdrawal %d at serial %d",
				ErrCorruptedLog, a.Balance, data.Amount, ev.SerialNumber)
		}
		a.Balance -= data.Amount
	default:
		return fmt.Errorf("%w: %s", ErrUnknownType, ev.Type)
	}
	a.Version = ev.SerialNumber
	return nil
}
