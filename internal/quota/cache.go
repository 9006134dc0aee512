package quota

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/arcrelay/geminiproxy/internal/model"
)

// Store is the persistence surface quota entries are kept in — permanent,
// no TTL, under its own Redis key namespace (spec §4.2's "distinct key
// namespaces" note). Satisfied by internal/repository.QuotaStore.
type Store interface {
	Get(ctx context.Context, accountID int64) ([]byte, bool, error)
	Set(ctx context.Context, accountID int64, data []byte) error
}

// Cache is the in-process façade over Store used by internal/pool and
// internal/dispatch. A short-lived local copy backs HealthScore/IsExhausted
// so the hot selection path doesn't round-trip to Redis on every account in
// the candidate list; Update keeps it current.
type Cache struct {
	store Store

	mu   sync.RWMutex
	hot  map[int64]*model.QuotaInfo
}

func NewCache(store Store) *Cache {
	return &Cache{store: store, hot: map[int64]*model.QuotaInfo{}}
}

// Update stores quota info parsed from a successful upstream response
// (spec §4.3/§4.4 step 7).
func (c *Cache) Update(ctx context.Context, info *model.QuotaInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, info.AccountID, data); err != nil {
		return err
	}
	c.mu.Lock()
	c.hot[info.AccountID] = info
	c.mu.Unlock()
	return nil
}

// MarkExhausted synthesises and stores a saturated QuotaInfo for a 429
// response that carried no quota headers (spec §4.3).
func (c *Cache) MarkExhausted(ctx context.Context, accountID int64, resetAfterSec int) error {
	return c.Update(ctx, model.MarkExhausted(accountID, resetAfterSec))
}

// Get returns the freshest known QuotaInfo for an account, loading from the
// backing store on a local cache miss. ok is false if no entry exists or it
// has expired.
func (c *Cache) Get(ctx context.Context, accountID int64) (info *model.QuotaInfo, ok bool) {
	c.mu.RLock()
	cached, hit := c.hot[accountID]
	c.mu.RUnlock()
	if hit {
		info = cached
	} else {
		data, found, err := c.store.Get(ctx, accountID)
		if err != nil {
			log.Printf("[quota] Get(%d) failed: %v", accountID, err)
			return nil, false
		}
		if !found {
			return nil, false
		}
		var parsed model.QuotaInfo
		if err := json.Unmarshal(data, &parsed); err != nil {
			log.Printf("[quota] Get(%d) corrupt entry: %v", accountID, err)
			return nil, false
		}
		info = &parsed
		c.mu.Lock()
		c.hot[accountID] = info
		c.mu.Unlock()
	}
	if info.IsExpired() {
		return nil, false
	}
	return info, true
}

// GetAll returns the non-expired entries among the given account ids
// (spec §4.3).
func (c *Cache) GetAll(ctx context.Context, accountIDs []int64) map[int64]*model.QuotaInfo {
	out := make(map[int64]*model.QuotaInfo, len(accountIDs))
	for _, id := range accountIDs {
		if info, ok := c.Get(ctx, id); ok {
			out[id] = info
		}
	}
	return out
}

// HealthScore implements pool.QuotaHealth.
func (c *Cache) HealthScore(ctx context.Context, accountID int64) (float64, bool) {
	info, ok := c.Get(ctx, accountID)
	if !ok {
		return 0, false
	}
	return info.HealthScore(), true
}

// IsExhausted implements pool.QuotaHealth.
func (c *Cache) IsExhausted(ctx context.Context, accountID int64) bool {
	info, ok := c.Get(ctx, accountID)
	if !ok {
		return false
	}
	return info.IsQuotaExhausted()
}
