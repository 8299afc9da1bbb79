package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/haandol/event-sourcing-example/domain"
)

type fakeCommandLog struct {
	mu       sync.Mutex
	recorded map[string]domain.Command
	err      error
}

func (f *fakeCommandLog) RecordCommand(ctx context.Context, cmd domain.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.recorded == nil {
		f.recorded = map[string]domain.Command{}
	}
	if _, exists := f.recorded[cmd.ID]; exists {
		return fmt.Errorf("record command %s: %w", cmd.ID, domain.ErrDuplicateCommand)
	}
	f.recorded[cmd.ID] = cmd
	return nil
}

type slotKey struct {
	aggregateID  string
	serialNumber int64
}

// fakeEventLog mimics the conditional-append semantics of the real store:
// a slot can be written exactly once. occupyFirst forces the first N
// appends to report an occupied slot to exercise the retry loop.
type fakeEventLog struct {
	mu          sync.Mutex
	slots       map[slotKey]domain.DomainEvent
	occupyFirst int
	appendErr   error
	listErr     error
}

func (f *fakeEventLog) AppendEvent(ctx context.Context, ev domain.DomainEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	if f.occupyFirst > 0 {
		f.occupyFirst--
		return fmt.Errorf("append %s/%d: %w", ev.AggregateID, ev.SerialNumber, domain.ErrSlotOccupied)
	}
	if f.slots == nil {
		f.slots = map[slotKey]domain.DomainEvent{}
	}
	key := slotKey{aggregateID: ev.AggregateID, serialNumber: ev.SerialNumber}
	if _, exists := f.slots[key]; exists {
		return fmt.Errorf("append %s/%d: %w", ev.AggregateID, ev.SerialNumber, domain.ErrSlotOccupied)
	}
	f.slots[key] = ev
	return nil
}

func (f *fakeEventLog) ListEvents(ctx context.Context, aggregateID string) ([]domain.DomainEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	events := []domain.DomainEvent{}
	for key, ev := range f.slots {
		if key.aggregateID == aggregateID {
			events = append(events, ev)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].SerialNumber < events[j].SerialNumber })
	return events, nil
}

func (f *fakeEventLog) LatestEvent(ctx context.Context, aggregateID string) (*domain.DomainEvent, error) {
	events, err := f.ListEvents(ctx, aggregateID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[len(events)-1], nil
}

func (f *fakeEventLog) seed(ctx context.Context, events ...domain.DomainEvent) error {
	for _, ev := range events {
		if err := f.AppendEvent(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	keys      []string
	published []domain.DomainEvent
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, key string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	var ev domain.DomainEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, ev)
	return nil
}
