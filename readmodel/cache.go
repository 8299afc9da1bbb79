package readmodel

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/haandol/event-sourcing-example/storage"
)

const accountCachePrefix = "acct"

// AccountSnapshot is the cached (and API-facing) view of one account.
type AccountSnapshot struct {
	Version   int       `json:"version"`
	CachedAt  time.Time `json:"cachedAt"`
	AccountID string    `json:"accountId"`
	Balance   int64     `json:"balance"`
	Revision  int64     `json:"revision"`
	UpdatedAt int64     `json:"updatedAt"`
}

type cacheReader interface {
	GetAccount(ctx context.Context, accountID string) (*storage.AccountRecord, error)
}

// Cache keeps per-account snapshots in Redis, refreshed by the updater
// after every projected event and read by the API with a storage fallback.
type Cache struct {
	store cacheReader
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

func NewCache(store cacheReader, client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Cache{
		store: store,
		redis: client,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Refresh re-reads the projected record and replaces the cache entry.
// Cache failures are logged, never surfaced; the table stays authoritative.
func (c *Cache) Refresh(ctx context.Context, accountID string) {
	if c == nil || c.redis == nil || c.store == nil {
		return
	}
	rec, err := c.store.GetAccount(ctx, accountID)
	if err != nil {
		log.WithError(err).WithField("account", accountID).Error("failed to load account for cache")
		return
	}
	key := cacheKey(accountID)
	if rec == nil {
		if err := c.redis.Del(ctx, key).Err(); err != nil {
			log.WithError(err).WithField("account", accountID).Error("failed to delete cache entry")
		}
		return
	}
	payload := AccountSnapshot{
		Version:   1,
		CachedAt:  c.now().UTC(),
		AccountID: rec.ID,
		Balance:   rec.Balance,
		Revision:  rec.Version,
		UpdatedAt: rec.UpdatedAt,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).WithField("account", accountID).Error("failed to marshal cache payload")
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.WithError(err).WithField("account", accountID).Error("failed to store cache entry")
	}
}

// Lookup returns the cached snapshot, or ok=false on a miss or any cache
// problem. A corrupt entry is evicted so the next refresh rewrites it.
func (c *Cache) Lookup(ctx context.Context, accountID string) (AccountSnapshot, bool) {
	var snap AccountSnapshot
	if c == nil || c.redis == nil {
		return snap, false
	}
	key := cacheKey(accountID)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, key).Err()
		}
		return snap, false
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return snap, false
	}
	return snap, true
}

func cacheKey(accountID string) string {
	return accountCachePrefix + ":" + accountID
}
