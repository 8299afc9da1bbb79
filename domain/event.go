package domain

import (
	"encoding/json"
	"time"
)

const (
	AccountCreated = "AccountCreated"
	MoneyDeposited = "MoneyDeposited"
	MoneyWithdrawn = "MoneyWithdrawn"
)

// DomainEvent is an accepted state change. The (AggregateID, SerialNumber)
// pair identifies it uniquely; serial numbers for one aggregate are dense
// and start at 1.
type DomainEvent struct {
	AggregateID  string          `json:"aggregateId"`
	SerialNumber int64           `json:"serialNumber"`
	Timestamp    int64           `json:"timestamp"`
	Type         string          `json:"type"`
	Data         json.RawMessage `json:"data"`
}

// NewDomainEvent stamps an event of the given type at the given slot. The
// data payload is reused verbatim from the command that produced it.
func NewDomainEvent(evType, aggregateID string, serialNumber int64, data json.RawMessage) DomainEvent {
	return DomainEvent{
		AggregateID:  aggregateID,
		SerialNumber: serialNumber,
		Timestamp:    time.Now().UnixMilli(),
		Type:         evType,
		Data:         data,
	}
}
