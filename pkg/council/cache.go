package council

import (
	"container/list"
	"sync"
	"time"

	"github.com/forge-health/forge-core/pkg/clock"
)

const (
	defaultCacheSize = 1000
	defaultCacheTTL  = 30 * 24 * time.Hour
)

// opinionCache is a capped LRU keyed by proposal hash. Entries carry
// their deliberation time; expiry is checked on read.
type opinionCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
	cap     int
	ttl     time.Duration
	clock   clock.Clock
	hits    int
}

type cacheEntry struct {
	key      string
	opinion  *Opinion
	cachedAt time.Time
}

func newOpinionCache(capacity int, ttl time.Duration, clk clock.Clock) *opinionCache {
	if capacity <= 0 {
		capacity = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &opinionCache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		cap:     capacity,
		ttl:     ttl,
		clock:   clk,
	}
}

func (c *opinionCache) Get(key string) (*Opinion, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.clock.Now().Sub(entry.cachedAt) > c.ttl {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return entry.opinion, true
}

func (c *opinionCache) Put(key string, opinion *Opinion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.opinion = opinion
		entry.cachedAt = c.clock.Now()
		c.order.MoveToFront(el)
		return
	}
	if c.order.Len() >= c.cap {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{
		key:      key,
		opinion:  opinion,
		cachedAt: c.clock.Now(),
	})
}

func (c *opinionCache) Hits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}
