package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func transferPayload(t *testing.T, accountID string, amount int64) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(TransferData{AccountID: accountID, Amount: amount})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func TestAccountFold(t *testing.T) {
	created := NewDomainEvent(AccountCreated, "acc-1", 1, json.RawMessage(`{"accountId":"acc-1"}`))
	acct := NewAccount(created)
	if acct.Balance != 0 || acct.Version != 1 {
		t.Fatalf("unexpected initial state: %+v", acct)
	}

	deposit := NewDomainEvent(MoneyDeposited, "acc-1", 2, transferPayload(t, "acc-1", 50))
	if err := acct.Apply(deposit); err != nil {
		t.Fatalf("apply deposit: %v", err)
	}
	withdraw := NewDomainEvent(MoneyWithdrawn, "acc-1", 3, transferPayload(t, "acc-1", 20))
	if err := acct.Apply(withdraw); err != nil {
		t.Fatalf("apply withdrawal: %v", err)
	}

	if acct.Balance != 30 {
		t.Fatalf("expected balance 30, got %d", acct.Balance)
	}
	if acct.Version != 3 {
		t.Fatalf("expected version 3, got %d", acct.Version)
	}
}

func TestAccountFoldOverdraftIsCorruption(t *testing.T) {
	created := NewDomainEvent(AccountCreated, "acc-1", 1, json.RawMessage(`{"accountId":"acc-1"}`))
	acct := NewAccount(created)

	withdraw := NewDomainEvent(MoneyWithdrawn, "acc-1", 2, transferPayload(t, "acc-1", 10))
	err := acct.Apply(withdraw)
	if !errors.Is(err, ErrCorruptedLog) {
		t.Fatalf("expected ErrCorruptedLog, got %v", err)
	}
	if acct.Balance != 0 || acct.Version != 1 {
		t.Fatalf("state must be untouched after corruption: %+v", acct)
	}
}

func TestAccountFoldUnknownTypeLeavesStateUntouched(t *testing.T) {
	created := NewDomainEvent(AccountCreated, "acc-1", 1, json.RawMessage(`{"accountId":"acc-1"}`))
	acct := NewAccount(created)

	odd := NewDomainEvent("AccountFrozen", "acc-1", 2, json.RawMessage(`{}`))
	err := acct.Apply(odd)
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if acct.Version != 1 {
		t.Fatalf("version must not advance on skipped event, got %d", acct.Version)
	}
}

func TestNewCommandPayloads(t *testing.T) {
	for _, cmd := range []Command{
		NewCreateAccount("acc-9"),
		NewDepositMoney("acc-9", 75),
		NewWithdrawMoney("acc-9", 75),
	} {
		if cmd.ID == "" || cmd.Timestamp == 0 {
			t.Fatalf("command envelope incomplete: %+v", cmd)
		}
		var data TransferData
		if err := json.Unmarshal(cmd.Data, &data); err != nil {
			t.Fatalf("decode %s payload: %v", cmd.Type, err)
		}
		if data.AccountID != "acc-9" {
			t.Fatalf("unexpected payload for %s: %+v", cmd.Type, data)
		}
	}

	cmd := NewWithdrawMoney("acc-9", 75)
	if cmd.Type != WithdrawMoney {
		t.Fatalf("unexpected type %s", cmd.Type)
	}
	var data TransferData
	if err := json.Unmarshal(cmd.Data, &data); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if data.Amount != 75 {
		t.Fatalf("unexpected payload: %+v", data)
	}
}
