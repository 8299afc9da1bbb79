package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"github.com/haandol/event-sourcing-example/domain"
)

// serialKeyMax bounds the serial numbers representable in a row key. Row
// keys store serialKeyMax-serialNumber zero-padded, so listing a partition
// in native ascending row-key order yields events newest-first and the tail
// query is a Top=1 list.
const serialKeyMax = int64(999999999999)

const edmInt64 = "Edm.Int64"

func serialRowKey(serialNumber int64) string {
	return fmt.Sprintf("%012d", serialKeyMax-serialNumber)
}

type eventEntity struct {
	aztables.Entity
	SerialNumber       int64  `json:"SerialNumber,string"`
	SerialNumberType   string `json:"SerialNumber@odata.type"`
	EventTimestamp     int64  `json:"EventTimestamp,string"`
	EventTimestampType string `json:"EventTimestamp@odata.type"`
	EventType          string `json:"EventType"`
	Data               string `json:"Data"`
}

func encodeEvent(ev domain.DomainEvent) eventEntity {
	return eventEntity{
		Entity: aztables.Entity{
			PartitionKey: ev.AggregateID,
			RowKey:       serialRowKey(ev.SerialNumber),
		},
		SerialNumber:       ev.SerialNumber,
		SerialNumberType:   edmInt64,
		EventTimestamp:     ev.Timestamp,
		EventTimestampType: edmInt64,
		EventType:          ev.Type,
		Data:               string(ev.Data),
	}
}

func decodeEvent(ent eventEntity) domain.DomainEvent {
	return domain.DomainEvent{
		AggregateID:  ent.PartitionKey,
		SerialNumber: ent.SerialNumber,
		Timestamp:    ent.EventTimestamp,
		Type:         ent.EventType,
		Data:         json.RawMessage(ent.Data),
	}
}

// AppendEvent inserts the event at its (aggregateId, serialNumber) slot.
// domain.ErrSlotOccupied is returned when the slot already holds an event;
// the existing record is never touched.
func (s *Storage) AppendEvent(ctx context.Context, ev domain.DomainEvent) error {
	payload, err := json.Marshal(encodeEvent(ev))
	if err != nil {
		return err
	}
	if _, err := s.eventTable.AddEntity(ctx, payload, nil); err != nil {
		if isConflict(err) {
			return fmt.Errorf("append %s/%d: %w", ev.AggregateID, ev.SerialNumber, domain.ErrSlotOccupied)
		}
		return err
	}
	return nil
}

// ListEvents returns the aggregate's events in ascending serial order,
// starting at 1. An aggregate with no events yields an empty slice.
func (s *Storage) ListEvents(ctx context.Context, aggregateID string) ([]domain.DomainEvent, error) {
	filter := "PartitionKey eq '" + aggregateID + "'"
	pager := s.eventTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	events := []domain.DomainEvent{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent eventEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			events = append(events, decodeEvent(ent))
		}
	}
	// Row keys are inverted serials, so the listing arrives newest-first.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// LatestEvent returns the aggregate's most recent event, or nil when no
// event exists.
func (s *Storage) LatestEvent(ctx context.Context, aggregateID string) (*domain.DomainEvent, error) {
	filter := "PartitionKey eq '" + aggregateID + "'"
	top := int32(1)
	pager := s.eventTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Top: &top})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		// A filtered query may return an empty page with a continuation
		// token; only an exhausted pager means the aggregate has no events.
		if len(resp.Entities) == 0 {
			continue
		}
		var ent eventEntity
		if err := json.Unmarshal(resp.Entities[0], &ent); err != nil {
			return nil, err
		}
		ev := decodeEvent(ent)
		return &ev, nil
	}
	return nil, nil
}
