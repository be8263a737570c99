package ontology

// boundedCache is an insertion-order bounded map. When the cap is exceeded
// the oldest 10% of entries are dropped in bulk. Callers hold the service
// lock around get/put.
type boundedCache struct {
	max     int
	entries map[string]any
	order   []string
}

func newBoundedCache(max int) *boundedCache {
	if max < 10 {
		max = 10
	}
	return &boundedCache{max: max, entries: map[string]any{}}
}

func (c *boundedCache) get(key string) (any, bool) {
	v, ok := c.entries[key]
	return v, ok
}

func (c *boundedCache) put(key string, v any) {
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = v
	if len(c.entries) > c.max {
		drop := c.max / 10
		if drop < 1 {
			drop = 1
		}
		for _, old := range c.order[:drop] {
			delete(c.entries, old)
		}
		c.order = c.order[drop:]
	}
}
