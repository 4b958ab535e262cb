package cache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/membership/pkg/observability"
)

// LRUPermissionCache is an in-process cache with size and TTL bounds.
//
// Generations come from a monotonic sequence: Invalidate stamps the pair
// with the next value and InvalidateAll raises a floor that every pair
// reads at least. Stamps evicted from the bounded generation table also
// raise the floor, so a pair never reads a smaller generation than before.
type LRUPermissionCache struct {
	mu      sync.Mutex
	entries *expirable.LRU[string, []string]
	gens    *lru.Cache[string, uint64]
	seq     uint64
	floor   atomic.Uint64
	metrics *observability.Metrics
}

// NewLRUPermissionCache creates a cache holding at most size entries for ttl
func NewLRUPermissionCache(size int, ttl time.Duration, metrics *observability.Metrics) *LRUPermissionCache {
	if size <= 0 {
		size = 10000
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &LRUPermissionCache{
		entries: expirable.NewLRU[string, []string](size, nil, ttl),
		metrics: metrics,
	}
	// size is positive, NewWithEvict only fails on a non-positive size
	c.gens, _ = lru.NewWithEvict[string, uint64](size, func(_ string, gen uint64) {
		c.raiseFloor(gen)
	})
	return c
}

func (c *LRUPermissionCache) raiseFloor(gen uint64) {
	for {
		cur := c.floor.Load()
		if gen <= cur || c.floor.CompareAndSwap(cur, gen) {
			return
		}
	}
}

// generation must be called with mu held
func (c *LRUPermissionCache) generation(key string) uint64 {
	gen, _ := c.gens.Peek(key)
	if floor := c.floor.Load(); floor > gen {
		return floor
	}
	return gen
}

func (c *LRUPermissionCache) Get(_ context.Context, userID, organizationID string) ([]string, bool, error) {
	perms, ok := c.entries.Get(entryKey(userID, organizationID))
	c.metrics.CacheLookup("lru", ok)
	if !ok {
		return nil, false, nil
	}
	return append([]string(nil), perms...), true, nil
}

func (c *LRUPermissionCache) Generation(_ context.Context, userID, organizationID string) (Generation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Generation(strconv.FormatUint(c.generation(entryKey(userID, organizationID)), 10)), nil
}

func (c *LRUPermissionCache) Set(_ context.Context, userID, organizationID string, gen Generation, permissions []string) (bool, error) {
	key := entryKey(userID, organizationID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if strconv.FormatUint(c.generation(key), 10) != string(gen) {
		return false, nil
	}
	c.entries.Add(key, append([]string(nil), permissions...))
	return true, nil
}

func (c *LRUPermissionCache) Invalidate(_ context.Context, userID, organizationID string) error {
	key := entryKey(userID, organizationID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.gens.Add(key, c.seq)
	c.entries.Remove(key)
	return nil
}

func (c *LRUPermissionCache) InvalidateAll(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.raiseFloor(c.seq)
	c.gens.Purge()
	c.entries.Purge()
	return nil
}

// Len reports the number of live entries
func (c *LRUPermissionCache) Len() int {
	return c.entries.Len()
}
