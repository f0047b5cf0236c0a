package traffic

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const maxCachedQueries = 512

type cachedStats struct {
	body     []byte
	storedAt time.Time
}

// statsCache holds rendered stats per query for a short TTL. It lives in
// process memory, so each API instance keeps its own copy. Entries also carry
// the service clock so an injected clock expires them the same way.
type statsCache struct {
	ttl     time.Duration
	entries *expirable.LRU[string, cachedStats]
}

func newStatsCache(ttl time.Duration) *statsCache {
	return &statsCache{
		ttl:     ttl,
		entries: expirable.NewLRU[string, cachedStats](maxCachedQueries, nil, ttl),
	}
}

func (c *statsCache) get(key string, now time.Time) ([]byte, bool) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if now.Sub(entry.storedAt) >= c.ttl {
		c.entries.Remove(key)
		return nil, false
	}
	return entry.body, true
}

func (c *statsCache) put(key string, body []byte, now time.Time) {
	c.entries.Add(key, cachedStats{body: body, storedAt: now})
}
