package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/haandol/event-sourcing-example/bus"
	"github.com/haandol/event-sourcing-example/domain"
)

type fakeConsumer struct {
	mu        sync.Mutex
	msgs      []bus.Message
	committed []bus.Message
	cancel    context.CancelFunc
}

func (f *fakeConsumer) Fetch(ctx context.Context) (bus.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		f.cancel()
		return bus.Message{}, context.Canceled
	}
	msg := f.msgs[0]
	f.msgs = f.msgs[1:]
	return msg, nil
}

func (f *fakeConsumer) Commit(ctx context.Context, msg bus.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msg)
	return nil
}

type fakeDeadLetter struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (f *fakeDeadLetter) Push(ctx context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return nil
}

func commandMessage(t *testing.T, cmd domain.Command) bus.Message {
	t.Helper()
	payload, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal command: %v", err)
	}
	return bus.Message{Key: []byte("acc-1"), Value: payload}
}

func runDispatcher(t *testing.T, events *fakeEventLog, msgs []bus.Message) (*fakeConsumer, *fakeDeadLetter, *Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := &fakeConsumer{msgs: msgs, cancel: cancel}
	deadLetter := &fakeDeadLetter{}
	svc := NewService(&fakeCommandLog{}, events, &fakePublisher{}, 5)
	d := NewDispatcher(consumer, Routes(svc), deadLetter, log.New())
	d.maxRetries = 1
	d.retryDelay = time.Millisecond

	if err := d.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	return consumer, deadLetter, svc
}

func TestDispatcherRoutesAndCommits(t *testing.T) {
	events := &fakeEventLog{}
	cmd := domain.NewCreateAccount("acc-1")

	consumer, deadLetter, _ := runDispatcher(t, events, []bus.Message{commandMessage(t, cmd)})

	stored, _ := events.ListEvents(context.Background(), "acc-1")
	if len(stored) != 1 || stored[0].Type != domain.AccountCreated {
		t.Fatalf("unexpected event log: %+v", stored)
	}
	if len(consumer.committed) != 1 {
		t.Fatalf("expected one committed offset, got %d", len(consumer.committed))
	}
	if len(deadLetter.payloads) != 0 {
		t.Fatalf("nothing should be dead-lettered")
	}
}

func TestDispatcherUnknownTypeDeadLetters(t *testing.T) {
	events := &fakeEventLog{}
	odd := bus.Message{Value: []byte(`{"id":"x","type":"FreezeAccount","data":{}}`)}
	cmd := domain.NewCreateAccount("acc-1")

	consumer, deadLetter, _ := runDispatcher(t, events, []bus.Message{odd, commandMessage(t, cmd)})

	if len(deadLetter.payloads) != 1 {
		t.Fatalf("unroutable message must be dead-lettered, got %d", len(deadLetter.payloads))
	}
	// The loop keeps going: the valid command behind it is still applied.
	stored, _ := events.ListEvents(context.Background(), "acc-1")
	if len(stored) != 1 {
		t.Fatalf("valid message after poison one must be handled: %+v", stored)
	}
	if len(consumer.committed) != 2 {
		t.Fatalf("both messages must be committed, got %d", len(consumer.committed))
	}
}

func TestDispatcherBusinessRejectionIsConsumed(t *testing.T) {
	events := &fakeEventLog{}
	cmd := domain.NewCreateAccount("acc-1")
	msg := commandMessage(t, cmd)

	consumer, deadLetter, _ := runDispatcher(t, events, []bus.Message{msg, msg})

	stored, _ := events.ListEvents(context.Background(), "acc-1")
	if len(stored) != 1 {
		t.Fatalf("redelivered command must not produce a second event: %+v", stored)
	}
	if len(consumer.committed) != 2 {
		t.Fatalf("rejections are still consumed, got %d commits", len(consumer.committed))
	}
	if len(deadLetter.payloads) != 0 {
		t.Fatalf("rejections must not be dead-lettered")
	}
}

func TestDispatcherRetriesTransientThenDeadLetters(t *testing.T) {
	events := &fakeEventLog{listErr: errors.New("store unavailable")}
	cmd := domain.NewWithdrawMoney("acc-1", 10)

	consumer, deadLetter, _ := runDispatcher(t, events, []bus.Message{commandMessage(t, cmd)})

	if len(deadLetter.payloads) != 1 {
		t.Fatalf("message must be dead-lettered after retries, got %d", len(deadLetter.payloads))
	}
	if len(consumer.committed) != 1 {
		t.Fatalf("dead-lettered message is still committed, got %d", len(consumer.committed))
	}
}
