package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	CreateAccount = "CreateAccount"
	DepositMoney  = "DepositMoney"
	WithdrawMoney = "WithdrawMoney"
)

// Command is a request to change an aggregate, as carried on the bus and in
// the command log. Commands are immutable once created; the ID doubles as
// the idempotency key.
type Command struct {
	ID        string          `json:"id"`
	Timestamp int64           `json:"timestamp"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
}

// AccountData is the payload of CreateAccount and AccountCreated.
type AccountData struct {
	AccountID string `json:"accountId"`
}

// TransferData is the payload of DepositMoney/WithdrawMoney and the events
// they produce.
type TransferData struct {
	AccountID string `json:"accountId"`
	Amount    int64  `json:"amount"`
}

func newCommand(cmdType string, data any) Command {
	// Payloads are plain structs of strings and integers; marshalling them
	// cannot fail.
	payload, _ := json.Marshal(data)
	return Command{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Type:      cmdType,
		Data:      payload,
	}
}

func NewCreateAccount(accountID string) Command {
	return newCommand(CreateAccount, AccountData{AccountID: accountID})
}

func NewDepositMoney(accountID string, amount int64) Command {
	return newCommand(DepositMoney, TransferData{AccountID: accountID, Amount: amount})
}

func NewWithdrawMoney(accountID string, amount int64) Command {
	return newCommand(WithdrawMoney, TransferData{AccountID: accountID, Amount: amount})
}
