package engine

import "context"

// Sequencer computes the next serial number for an aggregate from the tail
// of its event log.
type Sequencer struct {
	events EventLog
}

func NewSequencer(events EventLog) Sequencer {
	return Sequencer{events: events}
}

// NextSerialNumber returns lastSerialNumber+1, or 1 for an aggregate with
// no events. The value is advisory: another writer may take the slot
// between this read and the append, in which case the append reports
// ErrSlotOccupied and the caller must recompute.
func (s Sequencer) NextSerialNumber(ctx context.Context, aggregateID string) (int64, error) {
	last, err := s.events.LatestEvent(ctx, aggregateID)
	if err != nil {
		return 0, err
	}
	if last == nil {
		return 1, nil
	}
	return last.SerialNumber + 1, nil
}
