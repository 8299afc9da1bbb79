package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"github.com/haandol/event-sourcing-example/domain"
)

// AccountRecord is the projected account snapshot served to readers. It is
// derived state; the event log stays the source of truth.
type AccountRecord struct {
	ID        string
	Balance   int64
	Version   int64
	UpdatedAt int64
	ETag      string
}

type accountEntity struct {
	aztables.Entity
	ETag               string `json:"odata.etag,omitempty"`
	Balance            int64  `json:"Balance,string"`
	BalanceType        string `json:"Balance@odata.type"`
	Version            int64  `json:"Version,string"`
	VersionType        string `json:"Version@odata.type"`
	EventTimestamp     int64  `json:"EventTimestamp,string"`
	EventTimestampType string `json:"EventTimestamp@odata.type"`
}

func encodeAccount(rec AccountRecord) accountEntity {
	return accountEntity{
		Entity:             aztables.Entity{PartitionKey: rec.ID, RowKey: rec.ID},
		Balance:            rec.Balance,
		BalanceType:        edmInt64,
		Version:            rec.Version,
		VersionType:        edmInt64,
		EventTimestamp:     rec.UpdatedAt,
		EventTimestampType: edmInt64,
	}
}

// GetAccount retrieves the projected account, or nil when none exists.
func (s *Storage) GetAccount(ctx context.Context, accountID string) (*AccountRecord, error) {
	resp, err := s.accountTable.GetEntity(ctx, accountID, accountID, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var ent accountEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	return &AccountRecord{
		ID:        ent.PartitionKey,
		Balance:   ent.Balance,
		Version:   ent.Version,
		UpdatedAt: ent.EventTimestamp,
		ETag:      ent.ETag,
	}, nil
}

// InsertAccount creates the projected account. A snapshot that already
// exists yields domain.ErrConcurrencyConflict.
func (s *Storage) InsertAccount(ctx context.Context, rec AccountRecord) error {
	payload, err := json.Marshal(encodeAccount(rec))
	if err != nil {
		return err
	}
	if _, err := s.accountTable.AddEntity(ctx, payload, nil); err != nil {
		if isConflict(err) {
			return fmt.Errorf("insert account %s: %w", rec.ID, domain.ErrConcurrencyConflict)
		}
		return err
	}
	return nil
}

// UpdateAccount merges the snapshot under the given ETag. A mismatched ETag
// yields domain.ErrConcurrencyConflict so the caller can re-read and retry.
func (s *Storage) UpdateAccount(ctx context.Context, rec AccountRecord, etag string) error {
	payload, err := json.Marshal(encodeAccount(rec))
	if err != nil {
		return err
	}
	match := azcore.ETag(etag)
	_, err = s.accountTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &match,
		UpdateMode: aztables.UpdateModeMerge,
	})
	if err != nil && isPrecondition(err) {
		return fmt.Errorf("update account %s: %w", rec.ID, domain.ErrConcurrencyConflict)
	}
	return err
}
