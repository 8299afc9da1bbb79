package readmodel

import (
	"context"
	"fmt"
	"sync"

	"github.com/haandol/event-sourcing-example/domain"
	"github.com/haandol/event-sourcing-example/storage"
)

// fakeAccountStore mimics the conditional-write behaviour of the account
// table: insert fails on an existing row, update fails on a stale ETag.
type fakeAccountStore struct {
	mu            sync.Mutex
	recs          map[string]storage.AccountRecord
	revs          map[string]int
	conflictFirst int
	failGets      int
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{
		recs: make(map[string]storage.AccountRecord),
		revs: make(map[string]int),
	}
}

func (f *fakeAccountStore) GetAccount(ctx context.Context, accountID string) (*storage.AccountRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGets > 0 {
		f.failGets--
		return nil, fmt.Errorf("table unavailable")
	}
	rec, ok := f.recs[accountID]
	if !ok {
		return nil, nil
	}
	rec.ETag = fmt.Sprintf("rev-%d", f.revs[accountID])
	return &rec, nil
}

func (f *fakeAccountStore) InsertAccount(ctx context.Context, rec storage.AccountRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.recs[rec.ID]; ok {
		return fmt.Errorf("insert %s: %w", rec.ID, domain.ErrConcurrencyConflict)
	}
	f.recs[rec.ID] = rec
	f.revs[rec.ID] = 1
	return nil
}

func (f *fakeAccountStore) UpdateAccount(ctx context.Context, rec storage.AccountRecord, etag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflictFirst > 0 {
		f.conflictFirst--
		return fmt.Errorf("update %s: %w", rec.ID, domain.ErrConcurrencyConflict)
	}
	if etag != fmt.Sprintf("rev-%d", f.revs[rec.ID]) {
		return fmt.Errorf("update %s: %w", rec.ID, domain.ErrConcurrencyConflict)
	}
	f.recs[rec.ID] = rec
	f.revs[rec.ID]++
	return nil
}
