package readmodel

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/haandol/event-sourcing-example/storage"
)

func newTestCache(t *testing.T, store cacheReader) (*Cache, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	return NewCache(store, rc, time.Hour), m, rc
}

func TestCacheRefreshStoresSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newFakeAccountStore()
	if err := store.InsertAccount(ctx, storage.AccountRecord{ID: "acc-1", Balance: 40, Version: 3, UpdatedAt: 900}); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	cache, _, _ := newTestCache(t, store)
	freeze := time.Unix(123, 0).UTC()
	cache.now = func() time.Time { return freeze }

	cache.Refresh(ctx, "acc-1")

	snap, ok := cache.Lookup(ctx, "acc-1")
	if !ok {
		t.Fatal("expected a cache hit after refresh")
	}
	if snap.AccountID != "acc-1" || snap.Balance != 40 || snap.Revision != 3 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if !snap.CachedAt.Equal(freeze) {
		t.Fatalf("unexpected cachedAt: %v", snap.CachedAt)
	}
}

func TestCacheRefreshDeletesMissingAccount(t *testing.T) {
	ctx := context.Background()
	store := newFakeAccountStore()
	cache, m, _ := newTestCache(t, store)
	m.Set(cacheKey("acc-1"), `{"accountId":"acc-1"}`)

	cache.Refresh(ctx, "acc-1")

	if m.Exists(cacheKey("acc-1")) {
		t.Fatal("stale entry must be deleted when the record is gone")
	}
	if _, ok := cache.Lookup(ctx, "acc-1"); ok {
		t.Fatal("lookup after delete must miss")
	}
}

func TestCacheLookupEvictsCorruptEntry(t *testing.T) {
	ctx := context.Background()
	cache, m, _ := newTestCache(t, newFakeAccountStore())
	m.Set(cacheKey("acc-1"), "not json")

	if _, ok := cache.Lookup(ctx, "acc-1"); ok {
		t.Fatal("corrupt entry must be a miss")
	}
	if m.Exists(cacheKey("acc-1")) {
		t.Fatal("corrupt entry must be evicted")
	}
}
