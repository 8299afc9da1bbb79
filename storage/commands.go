package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"github.com/haandol/event-sourcing-example/domain"
)

type commandEntity struct {
	aztables.Entity
	EventTimestamp     int64  `json:"EventTimestamp,string"`
	EventTimestampType string `json:"EventTimestamp@odata.type"`
	EventType          string `json:"EventType"`
	Data               string `json:"Data"`
}

// RecordCommand inserts the command keyed by its id. This is the sole
// idempotency boundary against redelivery: a command id seen before yields
// domain.ErrDuplicateCommand and nothing is written.
func (s *Storage) RecordCommand(ctx context.Context, cmd domain.Command) error {
	ent := commandEntity{
		Entity:             aztables.Entity{PartitionKey: cmd.ID, RowKey: cmd.ID},
		EventTimestamp:     cmd.Timestamp,
		EventTimestampType: edmInt64,
		EventType:          cmd.Type,
		Data:               string(cmd.Data),
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := s.commandTable.AddEntity(ctx, payload, nil); err != nil {
		if isConflict(err) {
			return fmt.Errorf("record command %s: %w", cmd.ID, domain.ErrDuplicateCommand)
		}
		return err
	}
	return nil
}
